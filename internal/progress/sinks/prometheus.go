package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/url-indexer/internal/progress"
)

// PrometheusSink exports job lifecycle metrics. It owns the job, URL outcome,
// and account collectors.
type PrometheusSink struct {
	jobsStarted     prometheus.Counter
	jobsCompleted   *prometheus.CounterVec
	jobsRunning     prometheus.Gauge
	jobRuntime      *prometheus.HistogramVec
	urlOutcomes     *prometheus.CounterVec
	accountSwitches prometheus.Counter
	lastProgress    prometheus.Gauge

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against reg, or the default registerer when nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexer_jobs_started_total",
			Help: "Total indexing jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexer_jobs_completed_total",
			Help: "Total indexing jobs finished, partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indexer_jobs_running",
			Help: "Jobs currently holding the run slot.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "indexer_job_runtime_seconds",
			Help:    "Wall time per finished job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"result"}),
		urlOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexer_urls_total",
			Help: "URLs submitted to the indexing API, partitioned by outcome.",
		}, []string{"outcome"}),
		accountSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexer_account_switches_total",
			Help: "Times the indexing program reported a change of service account.",
		}),
		lastProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indexer_job_progress_percent",
			Help: "Last progress percentage reported by the running job.",
		}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.urlOutcomes,
		s.accountSwitches,
		s.lastProgress,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageJobStart:
		s.jobsStarted.Inc()
		s.lastProgress.Set(0)
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case progress.StageAccount:
		s.accountSwitches.Inc()
	case progress.StageProgress:
		s.lastProgress.Set(float64(evt.Percent))
	case progress.StageJobDone:
		s.finish(evt, "success")
	case progress.StageJobError:
		s.finish(evt, "error")
	}
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.jobsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	s.addOutcome("successful", evt.Successful)
	s.addOutcome("rate_limited", evt.RateLimited)
	s.addOutcome("failed", evt.Failed)
	s.lastProgress.Set(100)
	if s.tracker.complete(evt.JobID) {
		s.jobsRunning.Dec()
	}
}

func (s *PrometheusSink) addOutcome(label string, n int) {
	if n > 0 {
		s.urlOutcomes.WithLabelValues(label).Add(float64(n))
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]struct{})}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
