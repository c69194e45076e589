package orchestrator

import (
	"sync"
	"time"

	"github.com/JakeFAU/url-indexer/internal/indexing"
)

const defaultLogLines = 200

// RunState is the single run slot plus what the dashboard shows about the
// current (or most recent) run.
type RunState struct {
	mu        sync.Mutex
	running   bool
	jobID     string
	startedAt time.Time
	percent   int
	label     string
	logs      lineRing
}

// NewRunState creates an idle slot keeping at most maxLines log lines.
func NewRunState(maxLines int) *RunState {
	if maxLines <= 0 {
		maxLines = defaultLogLines
	}
	return &RunState{logs: newLineRing(maxLines)}
}

// TryAcquire claims the slot for jobID and resets progress and logs.
// It reports false when another run holds the slot.
func (s *RunState) TryAcquire(jobID string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.jobID = jobID
	s.startedAt = at
	s.percent = 0
	s.label = ""
	s.logs.reset()
	return true
}

// Release frees the slot and pins progress at 100.
func (s *RunState) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.percent = 100
}

// Busy reports whether a run holds the slot.
func (s *RunState) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetProgress records the latest reported percentage.
func (s *RunState) SetProgress(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.percent = min(max(percent, 0), 100)
}

// SetLabel records the account or phase currently in use.
func (s *RunState) SetLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = label
}

// AppendLog adds a line to the bounded log, evicting the oldest.
func (s *RunState) AppendLog(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs.push(line)
}

// Snapshot copies the slot state.
func (s *RunState) Snapshot() indexing.RunnerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := indexing.RunnerSnapshot{
		IsRunning:       s.running,
		JobID:           s.jobID,
		ProgressPercent: s.percent,
		CurrentLabel:    s.label,
		LogLines:        s.logs.lines(),
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		snap.StartedAt = &started
	}
	return snap
}

type lineRing struct {
	buf   []string
	start int
	n     int
}

func newLineRing(capacity int) lineRing {
	return lineRing{buf: make([]string, capacity)}
}

func (r *lineRing) push(line string) {
	idx := (r.start + r.n) % len(r.buf)
	r.buf[idx] = line
	if r.n < len(r.buf) {
		r.n++
		return
	}
	r.start = (r.start + 1) % len(r.buf)
}

func (r *lineRing) lines() []string {
	out := make([]string, r.n)
	for i := range r.n {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *lineRing) reset() {
	clear(r.buf)
	r.start, r.n = 0, 0
}
