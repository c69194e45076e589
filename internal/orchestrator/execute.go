package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/url-indexer/internal/indexing"
	"github.com/JakeFAU/url-indexer/internal/output"
	"github.com/JakeFAU/url-indexer/internal/progress"
	"github.com/JakeFAU/url-indexer/internal/runner"
)

const (
	handoffFile     = "urls.csv"
	credentialsFile = "credentials.json"
	inlineLabel     = "inline"
	finalizeTimeout = 10 * time.Second
)

// credentialSource is the key a run will hand to the program.
type credentialSource struct {
	id      string // empty for the inline key
	label   string
	payload []byte
}

// jobRun carries the mutable state of one execution.
type jobRun struct {
	job     indexing.Job
	started time.Time
	cred    *credentialSource
	logger  *zap.Logger

	mu       sync.Mutex
	tally    output.Tally
	terminal bool
}

// Execute runs one queued job to a terminal state. Errors inside the run are
// recorded on the job; the returned error covers only failures to load or
// finalize it.
func (o *Orchestrator) Execute(ctx context.Context, item indexing.QueueItem) error {
	job, err := o.jobs.GetJob(ctx, item.JobID)
	if err != nil {
		if errors.Is(err, indexing.ErrNotFound) {
			o.logger.Warn("queued job no longer exists", zap.String("job_id", item.JobID))
			return nil
		}
		return fmt.Errorf("load job %s: %w", item.JobID, err)
	}
	if job.Status.Terminal() {
		o.logger.Debug("skipping finished job", zap.String("job_id", job.ID))
		return nil
	}

	started := o.clock.Now().UTC()
	if !o.state.TryAcquire(job.ID, started) {
		return fmt.Errorf("job %s: %w", job.ID, indexing.ErrAlreadyRunning)
	}
	defer o.state.Release()

	run := &jobRun{
		job:     job,
		started: started,
		logger:  o.logger.With(zap.String("job_id", job.ID)),
	}
	o.emit(run, progress.Event{Stage: progress.StageJobStart, TotalURLs: job.TotalURLs})
	run.logger.Info("job started", zap.Int("total_urls", job.TotalURLs))

	cred, err := o.resolveCredential(ctx)
	switch {
	case errors.Is(err, indexing.ErrNoCredentials):
		o.markStarted(ctx, run)
		if o.cfg.DemoMode {
			return o.finishDemo(ctx, run, "no credentials configured")
		}
		return o.finish(ctx, run, indexing.JobStatusFailed, indexing.Results{Note: "no credentials configured"})
	case err != nil:
		o.markStarted(ctx, run)
		return o.finish(ctx, run, indexing.JobStatusFailed, indexing.Results{Note: fmt.Sprintf("load credential: %v", err)})
	}
	run.cred = &cred
	o.state.SetLabel(cred.label)
	o.markStarted(ctx, run)

	return o.runProgram(ctx, run)
}

func (o *Orchestrator) runProgram(ctx context.Context, run *jobRun) error {
	dir, err := o.prepareHandoff(run)
	if err != nil {
		return o.finish(ctx, run, indexing.JobStatusFailed, indexing.Results{Note: err.Error()})
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			run.logger.Warn("remove hand-off directory", zap.String("dir", dir), zap.Error(err))
		}
	}()

	args := append(append([]string(nil), o.cfg.Args...),
		filepath.Join(dir, handoffFile),
		filepath.Join(dir, credentialsFile),
	)
	cmd := runner.Command{
		Path:    o.cfg.Command,
		Args:    args,
		Dir:     o.cfg.Dir,
		Timeout: o.cfg.Timeout,
	}
	res, err := runner.Run(ctx, cmd, func(stream runner.Stream, line string) {
		o.state.AppendLog(line)
		if stream == runner.StreamStdout {
			o.handleLine(ctx, run, line)
		}
	})
	if err != nil {
		run.logger.Warn("indexer could not be started", zap.String("command", o.cfg.Command), zap.Error(err))
		if o.cfg.DemoMode {
			return o.finishDemo(ctx, run, "indexer unavailable")
		}
		startErr := fmt.Errorf("%w: %w", indexing.ErrExternalProgram, err)
		return o.finish(ctx, run, indexing.JobStatusFailed, indexing.Results{Note: startErr.Error()})
	}
	run.logger.Info("indexer exited",
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("elapsed", res.Stopped.Sub(res.Started)),
		zap.Error(res.Err),
	)
	return o.reconcile(ctx, run, res)
}

// handleLine applies one stdout line. The first terminal line finalizes the
// job right away; anything the program prints afterwards only reaches the log.
func (o *Orchestrator) handleLine(ctx context.Context, run *jobRun, line string) {
	evt := output.Parse(line)
	switch evt.Kind {
	case output.KindAccount:
		o.state.SetLabel(evt.Label)
		o.emit(run, progress.Event{Stage: progress.StageAccount, Label: evt.Label})
	case output.KindProgress:
		o.state.SetProgress(evt.Percent)
		o.emit(run, progress.Event{Stage: progress.StageProgress, Percent: evt.Percent})
	case output.KindURLResult:
		run.mu.Lock()
		if evt.OK {
			run.tally.Successful++
		} else {
			run.tally.Failed++
		}
		run.mu.Unlock()
		o.emit(run, progress.Event{Stage: progress.StageURL, OK: evt.OK})
	case output.KindCompleted, output.KindFailed:
		run.mu.Lock()
		run.tally = evt.Counts.Apply(run.tally)
		tally := run.tally
		run.mu.Unlock()
		status := indexing.JobStatusCompleted
		if evt.Kind == output.KindFailed {
			status = indexing.JobStatusFailed
		}
		results := resultsFrom(tally, evt.Note)
		if err := o.finish(ctx, run, status, results); err != nil {
			run.logger.Error("apply terminal line", zap.Error(err))
		}
	case output.KindNone:
	}
}

// reconcile settles a job whose program exited without printing a terminal line.
func (o *Orchestrator) reconcile(ctx context.Context, run *jobRun, res runner.Result) error {
	run.mu.Lock()
	done := run.terminal
	tally := run.tally
	run.mu.Unlock()
	if done {
		return nil
	}
	if res.Success() {
		return o.finish(ctx, run, indexing.JobStatusCompleted,
			resultsFrom(tally, "program exited without a summary line"))
	}
	note := fmt.Sprintf("indexer exited with code %d", res.ExitCode)
	if res.Err != nil && (errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded)) {
		note = fmt.Sprintf("indexer stopped: %v", res.Err)
	}
	return o.finish(ctx, run, indexing.JobStatusFailed, resultsFrom(tally, note))
}

func (o *Orchestrator) finishDemo(ctx context.Context, run *jobRun, reason string) error {
	if o.cfg.DemoDelay > 0 {
		timer := time.NewTimer(o.cfg.DemoDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return o.finish(ctx, run, indexing.JobStatusFailed,
				indexing.Results{Note: fmt.Sprintf("demo mode interrupted: %v", ctx.Err())})
		case <-timer.C:
		}
	}
	run.logger.Warn("demo mode result synthesized", zap.String("reason", reason))
	o.state.AppendLog("demo mode: " + reason)
	return o.finish(ctx, run, indexing.JobStatusCompleted, indexing.Results{
		Successful: run.job.TotalURLs,
		Note:       "demo mode: " + reason,
	})
}

// finish applies the terminal transition once per run, then settles the
// credential counters and emits the terminal event.
func (o *Orchestrator) finish(ctx context.Context, run *jobRun, status indexing.JobStatus, results indexing.Results) error {
	run.mu.Lock()
	if run.terminal {
		run.mu.Unlock()
		run.logger.Debug("ignoring repeated terminal result", zap.String("status", string(status)))
		return nil
	}
	run.terminal = true
	run.mu.Unlock()

	// Finalization must survive a shutdown that canceled the run.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	completed := o.clock.Now().UTC()
	err := o.jobs.CompleteJob(wctx, run.job.ID, status, results, completed)
	switch {
	case errors.Is(err, indexing.ErrTerminal), errors.Is(err, indexing.ErrNotFound):
		run.logger.Debug("job already settled", zap.Error(err))
		return nil
	case err != nil:
		return fmt.Errorf("complete job %s: %w", run.job.ID, err)
	}

	if run.cred != nil && run.cred.id != "" {
		if err := o.creds.RecordUsage(wctx, run.cred.id, run.job.TotalURLs, results.Attempted(), completed); err != nil {
			run.logger.Warn("record credential usage", zap.String("credential_id", run.cred.id), zap.Error(err))
		}
	}

	stage := progress.StageJobDone
	if status == indexing.JobStatusFailed {
		stage = progress.StageJobError
	}
	o.emit(run, progress.Event{
		Stage:       stage,
		TotalURLs:   run.job.TotalURLs,
		Successful:  results.Successful,
		RateLimited: results.RateLimited,
		Failed:      results.Failed,
		Dur:         max(completed.Sub(run.started), 0),
		Note:        results.Note,
	})
	run.logger.Info("job finished",
		zap.String("status", string(status)),
		zap.Int("successful", results.Successful),
		zap.Int("rate_limited", results.RateLimited),
		zap.Int("failed", results.Failed),
		zap.String("note", results.Note),
	)
	return nil
}

// resolveCredential picks the oldest stored key, then the inline key.
func (o *Orchestrator) resolveCredential(ctx context.Context) (credentialSource, error) {
	cred, err := o.creds.FirstCredential(ctx)
	switch {
	case err == nil:
		payload, err := o.readBlob(ctx, cred.FileRef)
		if err != nil {
			return credentialSource{}, fmt.Errorf("read credential %s: %w", cred.ID, err)
		}
		label := cred.Name
		if label == "" {
			label = cred.ClientEmail
		}
		return credentialSource{id: cred.ID, label: label, payload: payload}, nil
	case !errors.Is(err, indexing.ErrNotFound):
		return credentialSource{}, err
	}
	if len(bytes.TrimSpace(o.cfg.InlineCredentials)) > 0 {
		return credentialSource{label: inlineLabel, payload: o.cfg.InlineCredentials}, nil
	}
	return credentialSource{}, indexing.ErrNoCredentials
}

func (o *Orchestrator) readBlob(ctx context.Context, key string) ([]byte, error) {
	rc, err := o.blobs.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close()
	}()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// prepareHandoff writes the URL list and the credential into a private
// per-job directory and returns it.
func (o *Orchestrator) prepareHandoff(run *jobRun) (string, error) {
	base := o.cfg.WorkDir
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, run.job.ID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create hand-off directory: %w", err)
	}
	var buf bytes.Buffer
	if err := indexing.WriteURLList(&buf, run.job.URLs); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("encode hand-off file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, handoffFile), buf.Bytes(), 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("write hand-off file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, credentialsFile), run.cred.payload, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("write credential file: %w", err)
	}
	return dir, nil
}

func (o *Orchestrator) markStarted(ctx context.Context, run *jobRun) {
	credID := ""
	if run.cred != nil {
		credID = run.cred.id
	}
	if err := o.jobs.MarkStarted(ctx, run.job.ID, credID, run.started); err != nil {
		run.logger.Warn("mark job started", zap.Error(err))
	}
}

func (o *Orchestrator) emit(run *jobRun, evt progress.Event) {
	evt.JobID = run.job.ID
	evt.TS = o.clock.Now().UTC()
	o.emitter.Emit(evt)
}

func resultsFrom(t output.Tally, note string) indexing.Results {
	return indexing.Results{
		Successful:  t.Successful,
		RateLimited: t.RateLimited,
		Failed:      t.Failed,
		Note:        note,
	}
}
