package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart Stage = "JOB_START"
	StageAccount  Stage = "JOB_ACCOUNT"
	StageProgress Stage = "JOB_PROGRESS"
	StageURL      Stage = "JOB_URL"
	StageJobDone  Stage = "JOB_DONE"
	StageJobError Stage = "JOB_ERROR"
)

// Terminal reports whether the stage ends a job.
func (s Stage) Terminal() bool {
	return s == StageJobDone || s == StageJobError
}

// Event captures one step of a job run.
type Event struct {
	// JobID identifies the job being executed.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Label is the account in use for StageAccount.
	Label string
	// Percent is the reported completion for StageProgress.
	Percent int
	// OK is the per-URL outcome for StageURL.
	OK bool
	// TotalURLs is set on StageJobStart and terminal stages.
	TotalURLs   int
	Successful  int
	RateLimited int
	Failed      int
	// Dur is the wall time of the run on terminal stages.
	Dur time.Duration
	// Note carries the result note or error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError, StageURL:
	case StageAccount:
		if e.Label == "" {
			return errors.New("account event requires label")
		}
	case StageProgress:
		if e.Percent < 0 || e.Percent > 100 {
			return fmt.Errorf("percent %d out of range", e.Percent)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
