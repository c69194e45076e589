package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/url-indexer/internal/indexing"
)

var jobRowColumns = []string{
	"id", "kind", "urls", "status", "total_urls", "results",
	"credential_id", "created_at", "started_at", "completed_at",
}

func newMockJobStore(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewJobStore(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewJobStoreRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewJobStore(nil)
	require.Error(t, err)
}

func TestCreateJobInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	now := time.Unix(1700000000, 0).UTC()
	job := indexing.Job{
		ID:        "job-1",
		Kind:      indexing.JobKindSingle,
		URLs:      []string{"https://example.com"},
		Status:    indexing.JobStatusPending,
		TotalURLs: 1,
		CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO url_jobs").
		WithArgs("job-1", "single", []string{"https://example.com"}, "pending", 1,
			[]byte(nil), pgxmock.AnyArg(), now, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobWrapsStorageError(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	mock.ExpectExec("INSERT INTO url_jobs").WillReturnError(errors.New("boom"))

	err := store.CreateJob(context.Background(), indexing.Job{ID: "x"})
	require.ErrorIs(t, err, indexing.ErrStorage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobScansRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	created := time.Unix(1700000000, 0).UTC()
	started := created.Add(time.Second)
	completed := created.Add(time.Minute)
	cred := "cred-1"

	mock.ExpectQuery("SELECT .* FROM url_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(jobRowColumns).AddRow(
			"job-1", "batch", []string{"https://a.example", "https://b.example"}, "completed", 2,
			[]byte(`{"successful":1,"rateLimited":0,"failed":1,"note":"done"}`),
			&cred, created, &started, &completed,
		))

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, indexing.JobKindBatch, job.Kind)
	assert.Equal(t, indexing.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.TotalURLs)
	assert.Equal(t, "cred-1", job.CredentialID)
	require.NotNil(t, job.Results)
	assert.Equal(t, indexing.Results{Successful: 1, Failed: 1, Note: "done"}, *job.Results)
	require.NotNil(t, job.CompletedAt)
	assert.True(t, job.CompletedAt.Equal(completed))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	mock.ExpectQuery("SELECT .* FROM url_jobs WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, indexing.ErrNotFound)
}

func TestListJobsPaginates(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	created := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery("ORDER BY created_at DESC").
		WithArgs(2, 2).
		WillReturnRows(pgxmock.NewRows(jobRowColumns).
			AddRow("c", "single", []string{"https://c.example"}, "pending", 1, nil, nil, created, nil, nil).
			AddRow("b", "single", []string{"https://b.example"}, "pending", 1, nil, nil, created, nil, nil))

	jobs, total, err := store.ListJobs(context.Background(), indexing.Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, jobs, 2)
	assert.Equal(t, "c", jobs[0].ID)
	assert.Nil(t, jobs[0].Results)
	assert.Empty(t, jobs[0].CredentialID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPendingOldestFirst(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	created := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("WHERE status = 'pending'").
		WillReturnRows(pgxmock.NewRows(jobRowColumns).
			AddRow("a", "batch", []string{"https://a.example"}, "pending", 1, nil, nil, created, nil, nil))

	jobs, err := store.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteJobFirstWriterWins(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	at := time.Unix(1700000000, 0).UTC()
	results := indexing.Results{Successful: 2}

	mock.ExpectExec("UPDATE url_jobs").
		WithArgs("job-1", "completed", []byte(`{"successful":2,"rateLimited":0,"failed":0}`), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE url_jobs").
		WithArgs("job-1", "failed", pgxmock.AnyArg(), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM url_jobs").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("completed"))

	ctx := context.Background()
	require.NoError(t, store.CompleteJob(ctx, "job-1", indexing.JobStatusCompleted, results, at))
	err := store.CompleteJob(ctx, "job-1", indexing.JobStatusFailed, indexing.Results{}, at)
	require.ErrorIs(t, err, indexing.ErrTerminal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailProcessingUpdatesStaleRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("WHERE status = 'processing'").
		WithArgs(pgxmock.AnyArg(), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := store.FailProcessing(context.Background(), indexing.Results{Note: "restarted"}, at)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteJobRejectsNonTerminalStatus(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	err := store.CompleteJob(context.Background(), "job-1", indexing.JobStatusPending, indexing.Results{}, time.Now())
	require.ErrorIs(t, err, indexing.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkStartedMissingJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("UPDATE url_jobs").
		WithArgs("ghost", pgxmock.AnyArg(), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM url_jobs").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	err := store.MarkStarted(context.Background(), "ghost", "cred", at)
	require.ErrorIs(t, err, indexing.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessingUpdatesRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	mock.ExpectExec("SET status = 'processing'").
		WithArgs("job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkProcessing(context.Background(), "job-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteJobs(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	mock.ExpectExec("DELETE FROM url_jobs WHERE id").
		WithArgs("gone").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM url_jobs").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	ctx := context.Background()
	require.ErrorIs(t, store.DeleteJob(ctx, "gone"), indexing.ErrNotFound)
	n, err := store.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsComputesSuccessRate(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	mock.ExpectQuery("FROM url_jobs").
		WillReturnRows(pgxmock.NewRows([]string{
			"total", "pending", "processing", "completed", "failed",
			"urls", "successful", "rate_limited", "failed_urls",
		}).AddRow(4, 1, 1, 1, 1, 10, 3, 0, 1))

	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalRequests)
	assert.Equal(t, 10, st.TotalURLs)
	assert.InDelta(t, 75.0, st.SuccessRate, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}
