// Package orchestrator owns the lifecycle of URL indexing jobs: accepting
// submissions, serializing runs through a single slot, driving the external
// indexing program, and recording what it reports.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/url-indexer/internal/indexing"
	"github.com/JakeFAU/url-indexer/internal/progress"
)

// Config controls how jobs are executed.
type Config struct {
	// Command is the indexing program. The hand-off CSV path and the
	// credential path are appended to Args on every run.
	Command string
	Args    []string
	// Dir is the program's working directory; empty inherits ours.
	Dir string
	// WorkDir holds the per-job hand-off directories.
	WorkDir string
	// Timeout bounds one run. Zero disables it.
	Timeout time.Duration
	// DemoMode synthesizes a successful result when no credential or no
	// program is available.
	DemoMode  bool
	DemoDelay time.Duration
	// InlineCredentials is a service-account key used when none is stored.
	InlineCredentials []byte
	LogLines          int
}

const interruptedNote = "interrupted by a service restart"

// Enqueuer hands a job to the execution queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, item indexing.QueueItem) error
}

// Deps are the collaborators an Orchestrator needs.
type Deps struct {
	Jobs        indexing.JobStore
	Credentials indexing.CredentialStore
	Blobs       indexing.BlobStore
	Enqueuer    Enqueuer
	IDs         indexing.IDGenerator
	Clock       indexing.Clock
	Emitter     progress.Emitter
	Logger      *zap.Logger
}

// Orchestrator accepts submissions and executes queued jobs one at a time.
type Orchestrator struct {
	cfg      Config
	jobs     indexing.JobStore
	creds    indexing.CredentialStore
	blobs    indexing.BlobStore
	enqueuer Enqueuer
	ids      indexing.IDGenerator
	clock    indexing.Clock
	emitter  progress.Emitter
	logger   *zap.Logger
	state    *RunState
}

// New validates deps and builds an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Jobs == nil:
		return nil, errors.New("job store is required")
	case deps.Credentials == nil:
		return nil, errors.New("credential store is required")
	case deps.Blobs == nil:
		return nil, errors.New("blob store is required")
	case deps.Enqueuer == nil:
		return nil, errors.New("enqueuer is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	}
	if cfg.Command == "" && !cfg.DemoMode {
		return nil, errors.New("indexer command is required unless demo mode is enabled")
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		jobs:     deps.Jobs,
		creds:    deps.Credentials,
		blobs:    deps.Blobs,
		enqueuer: deps.Enqueuer,
		ids:      deps.IDs,
		clock:    deps.Clock,
		emitter:  deps.Emitter,
		logger:   deps.Logger,
		state:    NewRunState(cfg.LogLines),
	}, nil
}

// SubmitSingle validates one URL, records a processing job, and queues it.
func (o *Orchestrator) SubmitSingle(ctx context.Context, rawURL string) (string, error) {
	u, err := indexing.ValidateURL(rawURL)
	if err != nil {
		return "", err
	}
	job, err := o.createJob(ctx, indexing.JobKindSingle, []string{u}, indexing.JobStatusProcessing)
	if err != nil {
		return "", err
	}
	if err := o.enqueue(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// SubmitBatch validates every URL, records one processing job, and queues it.
// A single malformed URL rejects the whole batch.
func (o *Orchestrator) SubmitBatch(ctx context.Context, urls []string) (string, int, error) {
	job, err := o.createBatch(ctx, urls, indexing.JobStatusProcessing)
	if err != nil {
		return "", 0, err
	}
	if err := o.enqueue(ctx, job); err != nil {
		return "", 0, err
	}
	return job.ID, job.TotalURLs, nil
}

// SubmitBatchDeferred records a pending batch that StartIndexing will pick up.
func (o *Orchestrator) SubmitBatchDeferred(ctx context.Context, urls []string) (string, int, error) {
	job, err := o.createBatch(ctx, urls, indexing.JobStatusPending)
	if err != nil {
		return "", 0, err
	}
	return job.ID, job.TotalURLs, nil
}

// StartIndexing queues every pending job, oldest first. It refuses while a
// run holds the slot and reports ErrValidation when nothing is pending.
func (o *Orchestrator) StartIndexing(ctx context.Context) ([]string, error) {
	if o.state.Busy() {
		return nil, indexing.ErrAlreadyRunning
	}
	pending, err := o.jobs.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	if len(pending) == 0 {
		return nil, fmt.Errorf("%w: no pending requests", indexing.ErrValidation)
	}
	started := make([]string, 0, len(pending))
	for _, job := range pending {
		if err := o.jobs.MarkProcessing(ctx, job.ID); err != nil {
			// Deleted or finished since the listing.
			if errors.Is(err, indexing.ErrNotFound) || errors.Is(err, indexing.ErrTerminal) {
				continue
			}
			return started, fmt.Errorf("mark job %s processing: %w", job.ID, err)
		}
		if err := o.enqueue(ctx, job); err != nil {
			return started, err
		}
		started = append(started, job.ID)
	}
	o.logger.Info("pending jobs queued", zap.Int("count", len(started)))
	return started, nil
}

// RecoverInterrupted fails jobs left in processing by a previous process.
// The queue lives in memory, so nothing would ever pick them up again. It must
// run before the worker starts.
func (o *Orchestrator) RecoverInterrupted(ctx context.Context) (int, error) {
	n, err := o.jobs.FailProcessing(ctx, indexing.Results{Note: interruptedNote}, o.clock.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	if n > 0 {
		o.logger.Warn("interrupted jobs marked failed", zap.Int("count", n))
	}
	return n, nil
}

// Snapshot returns the current run slot state.
func (o *Orchestrator) Snapshot() indexing.RunnerSnapshot {
	return o.state.Snapshot()
}

// Busy reports whether a job currently holds the run slot.
func (o *Orchestrator) Busy() bool {
	return o.state.Busy()
}

func (o *Orchestrator) createBatch(ctx context.Context, raw []string, status indexing.JobStatus) (indexing.Job, error) {
	urls, err := indexing.ValidateURLs(raw)
	if err != nil {
		return indexing.Job{}, err
	}
	return o.createJob(ctx, indexing.JobKindBatch, urls, status)
}

func (o *Orchestrator) createJob(
	ctx context.Context,
	kind indexing.JobKind,
	urls []string,
	status indexing.JobStatus,
) (indexing.Job, error) {
	id, err := o.ids.NewID()
	if err != nil {
		return indexing.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := indexing.Job{
		ID:        id,
		Kind:      kind,
		URLs:      urls,
		Status:    status,
		TotalURLs: len(urls),
		CreatedAt: o.clock.Now().UTC(),
	}
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		return indexing.Job{}, fmt.Errorf("create job: %w", err)
	}
	o.logger.Info("job created",
		zap.String("job_id", id),
		zap.String("kind", string(kind)),
		zap.String("status", string(status)),
		zap.Int("total_urls", job.TotalURLs),
	)
	return job, nil
}

// enqueue hands the job to the worker. A job that cannot be queued would sit
// in processing forever, so it is failed on the spot.
func (o *Orchestrator) enqueue(ctx context.Context, job indexing.Job) error {
	item := indexing.QueueItem{JobID: job.ID, Enqueued: o.clock.Now()}
	if err := o.enqueuer.Enqueue(ctx, item); err != nil {
		note := fmt.Sprintf("could not queue job: %v", err)
		if cerr := o.jobs.CompleteJob(context.WithoutCancel(ctx), job.ID, indexing.JobStatusFailed,
			indexing.Results{Note: note}, o.clock.Now().UTC()); cerr != nil {
			o.logger.Error("fail unqueued job", zap.String("job_id", job.ID), zap.Error(cerr))
		}
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}
