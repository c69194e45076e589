// Package indexing defines the domain types, ports, and validation rules
// shared by the URL indexing service.
package indexing

import "time"

// JobKind distinguishes single-URL submissions from batch uploads.
type JobKind string

// Supported job kinds.
const (
	JobKindSingle JobKind = "single"
	JobKindBatch  JobKind = "batch"
)

// JobStatus enumerates the job lifecycle states.
type JobStatus string

// Supported job states.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Results captures the per-job outcome counts reported by the indexing program.
type Results struct {
	Successful  int    `json:"successful"`
	RateLimited int    `json:"rateLimited"`
	Failed      int    `json:"failed"`
	Note        string `json:"note,omitempty"`
}

// Attempted returns the number of URLs the indexing API actually answered for.
func (r Results) Attempted() int {
	return r.Successful + r.Failed
}

// Job is one submission of one or more URLs.
type Job struct {
	ID           string     `json:"id"`
	Kind         JobKind    `json:"type"`
	URLs         []string   `json:"urls"`
	Status       JobStatus  `json:"status"`
	TotalURLs    int        `json:"totalUrls"`
	Results      *Results   `json:"results,omitempty"`
	CredentialID string     `json:"credentialId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (j Job) Clone() Job {
	cp := j
	cp.URLs = append([]string(nil), j.URLs...)
	if j.Results != nil {
		res := *j.Results
		cp.Results = &res
	}
	cp.StartedAt = cloneTime(j.StartedAt)
	cp.CompletedAt = cloneTime(j.CompletedAt)
	return cp
}

// Credential is an uploaded Google service-account key and its usage counters.
type Credential struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	FileRef        string     `json:"-"`
	ClientEmail    string     `json:"clientEmail"`
	ProjectID      string     `json:"projectId"`
	Fingerprint    string     `json:"-"`
	TotalProcessed int        `json:"totalProcessed"`
	QuotaUsed      int        `json:"quotaUsed"`
	LastUsedAt     *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Page requests a window of a newest-first listing.
type Page struct {
	Limit  int
	Offset int
}

// Stats aggregates job counters for the dashboard.
type Stats struct {
	TotalRequests int     `json:"totalRequests"`
	Pending       int     `json:"pending"`
	Processing    int     `json:"processing"`
	Completed     int     `json:"completed"`
	Failed        int     `json:"failed"`
	TotalURLs     int     `json:"totalUrls"`
	Successful    int     `json:"successfulUrls"`
	RateLimited   int     `json:"rateLimitedUrls"`
	FailedURLs    int     `json:"failedUrls"`
	SuccessRate   float64 `json:"successRate"`
}

// ComputeSuccessRate fills SuccessRate as a percentage of attempted URLs.
func (s *Stats) ComputeSuccessRate() {
	attempted := s.Successful + s.RateLimited + s.FailedURLs
	if attempted == 0 {
		s.SuccessRate = 0
		return
	}
	rate := float64(s.Successful) / float64(attempted) * 100
	s.SuccessRate = float64(int(rate*100+0.5)) / 100
}

// RunnerSnapshot is a point-in-time copy of the run slot.
type RunnerSnapshot struct {
	IsRunning       bool       `json:"isRunning"`
	JobID           string     `json:"jobId,omitempty"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	ProgressPercent int        `json:"progress"`
	CurrentLabel    string     `json:"currentAccount,omitempty"`
	LogLines        []string   `json:"logs"`
}

// QueueItem is the unit of work handed to the execution worker.
type QueueItem struct {
	JobID    string
	Enqueued time.Time
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
