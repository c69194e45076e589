// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/url-indexer/internal/indexing"
)

type jobEntry struct {
	seq int64
	job indexing.Job
}

// JobStore keeps URL jobs in a map guarded by a RWMutex.
type JobStore struct {
	mu   sync.RWMutex
	seq  int64
	jobs map[string]jobEntry
}

// NewJobStore constructs an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]jobEntry)}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job indexing.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: job %s already exists", indexing.ErrStorage, job.ID)
	}
	s.seq++
	s.jobs[job.ID] = jobEntry{seq: s.seq, job: job.Clone()}
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, id string) (indexing.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.jobs[id]
	if !ok {
		return indexing.Job{}, fmt.Errorf("job %s: %w", id, indexing.ErrNotFound)
	}
	return entry.job.Clone(), nil
}

// ListJobs returns jobs newest first.
func (s *JobStore) ListJobs(_ context.Context, page indexing.Page) ([]indexing.Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.sorted(func(a, b jobEntry) bool {
		if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
			return a.job.CreatedAt.After(b.job.CreatedAt)
		}
		return a.seq > b.seq
	})
	total := len(entries)
	start := min(max(page.Offset, 0), total)
	end := total
	if page.Limit > 0 {
		end = min(start+page.Limit, total)
	}
	out := make([]indexing.Job, 0, end-start)
	for _, e := range entries[start:end] {
		out = append(out, e.job.Clone())
	}
	return out, total, nil
}

// ListPending returns pending jobs oldest first.
func (s *JobStore) ListPending(_ context.Context) ([]indexing.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.sorted(func(a, b jobEntry) bool {
		if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
			return a.job.CreatedAt.Before(b.job.CreatedAt)
		}
		return a.seq < b.seq
	})
	var out []indexing.Job
	for _, e := range entries {
		if e.job.Status == indexing.JobStatusPending {
			out = append(out, e.job.Clone())
		}
	}
	return out, nil
}

// MarkProcessing moves a pending job to processing.
func (s *JobStore) MarkProcessing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, indexing.ErrNotFound)
	}
	if entry.job.Status.Terminal() {
		return fmt.Errorf("job %s: %w", id, indexing.ErrTerminal)
	}
	entry.job.Status = indexing.JobStatusProcessing
	s.jobs[id] = entry
	return nil
}

// MarkStarted records when the run began and which credential it used.
func (s *JobStore) MarkStarted(_ context.Context, id, credentialID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, indexing.ErrNotFound)
	}
	if entry.job.Status.Terminal() {
		return fmt.Errorf("job %s: %w", id, indexing.ErrTerminal)
	}
	entry.job.Status = indexing.JobStatusProcessing
	entry.job.CredentialID = credentialID
	entry.job.StartedAt = &at
	s.jobs[id] = entry
	return nil
}

// CompleteJob applies a terminal status once.
func (s *JobStore) CompleteJob(
	_ context.Context,
	id string,
	status indexing.JobStatus,
	results indexing.Results,
	at time.Time,
) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: status %q is not terminal", indexing.ErrValidation, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, indexing.ErrNotFound)
	}
	if entry.job.Status.Terminal() {
		return fmt.Errorf("job %s: %w", id, indexing.ErrTerminal)
	}
	entry.job.Status = status
	entry.job.Results = &results
	entry.job.CompletedAt = &at
	s.jobs[id] = entry
	return nil
}

// FailProcessing fails every processing job.
func (s *JobStore) FailProcessing(_ context.Context, results indexing.Results, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, entry := range s.jobs {
		if entry.job.Status != indexing.JobStatusProcessing {
			continue
		}
		res := results
		entry.job.Status = indexing.JobStatusFailed
		entry.job.Results = &res
		entry.job.CompletedAt = &at
		s.jobs[id] = entry
		n++
	}
	return n, nil
}

// DeleteJob removes one job.
func (s *JobStore) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("job %s: %w", id, indexing.ErrNotFound)
	}
	delete(s.jobs, id)
	return nil
}

// DeleteAll removes every job and reports how many were removed.
func (s *JobStore) DeleteAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.jobs)
	s.jobs = make(map[string]jobEntry)
	return n, nil
}

// Stats aggregates job and URL counters.
func (s *JobStore) Stats(_ context.Context) (indexing.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st indexing.Stats
	for _, e := range s.jobs {
		st.TotalRequests++
		st.TotalURLs += e.job.TotalURLs
		switch e.job.Status {
		case indexing.JobStatusPending:
			st.Pending++
		case indexing.JobStatusProcessing:
			st.Processing++
		case indexing.JobStatusCompleted:
			st.Completed++
		case indexing.JobStatusFailed:
			st.Failed++
		}
		if e.job.Results != nil {
			st.Successful += e.job.Results.Successful
			st.RateLimited += e.job.Results.RateLimited
			st.FailedURLs += e.job.Results.Failed
		}
	}
	st.ComputeSuccessRate()
	return st, nil
}

func (s *JobStore) sorted(less func(a, b jobEntry) bool) []jobEntry {
	entries := make([]jobEntry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
	return entries
}
