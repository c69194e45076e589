package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/url-indexer/internal/indexing"
)

const jobColumns = `id, kind, urls, status, total_urls, results, credential_id, created_at, started_at, completed_at`

// JobStore persists URL jobs in the url_jobs table.
type JobStore struct {
	pool Pool
}

// NewJobStore wraps an open pool.
func NewJobStore(pool Pool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job indexing.Job) error {
	results, err := encodeResults(job.Results)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO url_jobs (` + jobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err = s.pool.Exec(ctx, query,
		job.ID,
		string(job.Kind),
		job.URLs,
		string(job.Status),
		job.TotalURLs,
		results,
		nullString(job.CredentialID),
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return storageErr("insert job", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, id string) (indexing.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM url_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return indexing.Job{}, fmt.Errorf("job %s: %w", id, indexing.ErrNotFound)
	}
	if err != nil {
		return indexing.Job{}, storageErr("get job", err)
	}
	return job, nil
}

// ListJobs returns a newest-first page and the total job count.
func (s *JobStore) ListJobs(ctx context.Context, page indexing.Page) ([]indexing.Job, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM url_jobs`).Scan(&total); err != nil {
		return nil, 0, storageErr("count jobs", err)
	}
	// LIMIT NULL means no limit.
	var limit any
	if page.Limit > 0 {
		limit = page.Limit
	}
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM url_jobs
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2`, limit, max(page.Offset, 0))
	if err != nil {
		return nil, 0, storageErr("list jobs", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// ListPending returns pending jobs oldest first.
func (s *JobStore) ListPending(ctx context.Context) ([]indexing.Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM url_jobs
WHERE status = 'pending'
ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, storageErr("list pending jobs", err)
	}
	return collectJobs(rows)
}

// MarkProcessing moves a pending job to processing.
func (s *JobStore) MarkProcessing(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE url_jobs SET status = 'processing'
WHERE id = $1 AND status IN ('pending', 'processing')`, id)
	if err != nil {
		return storageErr("mark job processing", err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainMiss(ctx, id)
	}
	return nil
}

// MarkStarted records the run start and the credential chosen for it.
func (s *JobStore) MarkStarted(ctx context.Context, id, credentialID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE url_jobs
SET status = 'processing', credential_id = $2, started_at = $3
WHERE id = $1 AND status IN ('pending', 'processing')`, id, nullString(credentialID), at)
	if err != nil {
		return storageErr("mark job started", err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainMiss(ctx, id)
	}
	return nil
}

// CompleteJob applies a terminal status. The WHERE clause makes the first
// writer win; later calls report ErrTerminal.
func (s *JobStore) CompleteJob(
	ctx context.Context,
	id string,
	status indexing.JobStatus,
	results indexing.Results,
	at time.Time,
) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: status %q is not terminal", indexing.ErrValidation, status)
	}
	payload, err := encodeResults(&results)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE url_jobs
SET status = $2, results = $3, completed_at = $4
WHERE id = $1 AND status IN ('pending', 'processing')`, id, string(status), payload, at)
	if err != nil {
		return storageErr("complete job", err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainMiss(ctx, id)
	}
	return nil
}

// FailProcessing fails every processing job in one statement.
func (s *JobStore) FailProcessing(ctx context.Context, results indexing.Results, at time.Time) (int, error) {
	payload, err := encodeResults(&results)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE url_jobs
SET status = 'failed', results = $1, completed_at = $2
WHERE status = 'processing'`, payload, at)
	if err != nil {
		return 0, storageErr("fail processing jobs", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteJob removes one job.
func (s *JobStore) DeleteJob(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM url_jobs WHERE id = $1`, id)
	if err != nil {
		return storageErr("delete job", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, indexing.ErrNotFound)
	}
	return nil
}

// DeleteAll removes every job and reports how many rows were removed.
func (s *JobStore) DeleteAll(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM url_jobs`)
	if err != nil {
		return 0, storageErr("delete all jobs", err)
	}
	return int(tag.RowsAffected()), nil
}

// Stats aggregates job and URL counters in one pass.
func (s *JobStore) Stats(ctx context.Context) (indexing.Stats, error) {
	const query = `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE status = 'pending'),
	COUNT(*) FILTER (WHERE status = 'processing'),
	COUNT(*) FILTER (WHERE status = 'completed'),
	COUNT(*) FILTER (WHERE status = 'failed'),
	COALESCE(SUM(total_urls), 0),
	COALESCE(SUM((results->>'successful')::int), 0),
	COALESCE(SUM((results->>'rateLimited')::int), 0),
	COALESCE(SUM((results->>'failed')::int), 0)
FROM url_jobs`
	var st indexing.Stats
	err := s.pool.QueryRow(ctx, query).Scan(
		&st.TotalRequests,
		&st.Pending,
		&st.Processing,
		&st.Completed,
		&st.Failed,
		&st.TotalURLs,
		&st.Successful,
		&st.RateLimited,
		&st.FailedURLs,
	)
	if err != nil {
		return indexing.Stats{}, storageErr("job stats", err)
	}
	st.ComputeSuccessRate()
	return st, nil
}

// explainMiss distinguishes a missing job from one that already finished
// after a guarded UPDATE touched no rows.
func (s *JobStore) explainMiss(ctx context.Context, id string) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM url_jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("job %s: %w", id, indexing.ErrNotFound)
	}
	if err != nil {
		return storageErr("read job status", err)
	}
	return fmt.Errorf("job %s is %s: %w", id, status, indexing.ErrTerminal)
}

func collectJobs(rows pgx.Rows) ([]indexing.Job, error) {
	defer rows.Close()
	var jobs []indexing.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, storageErr("scan job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate jobs", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (indexing.Job, error) {
	var (
		job          indexing.Job
		kind, status string
		results      []byte
		credentialID *string
		startedAt    *time.Time
		completedAt  *time.Time
	)
	err := row.Scan(
		&job.ID,
		&kind,
		&job.URLs,
		&status,
		&job.TotalURLs,
		&results,
		&credentialID,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return indexing.Job{}, err
	}
	job.Kind = indexing.JobKind(kind)
	job.Status = indexing.JobStatus(status)
	if credentialID != nil {
		job.CredentialID = *credentialID
	}
	job.StartedAt = startedAt
	job.CompletedAt = completedAt
	if len(results) > 0 {
		var res indexing.Results
		if err := json.Unmarshal(results, &res); err != nil {
			return indexing.Job{}, fmt.Errorf("decode results: %w", err)
		}
		job.Results = &res
	}
	return job, nil
}

func encodeResults(res *indexing.Results) ([]byte, error) {
	if res == nil {
		return nil, nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal results: %w", err)
	}
	return data, nil
}
