package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quirkfly/ivesna/internal/progress"
)

// PrometheusSink exports ingestion progress metrics. It owns all
// collectors for jobs started/completed/running and per-tenant page
// counters.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	pagesStored  *prometheus.CounterVec
	pagesFailed  *prometheus.CounterVec
	chunksStored *prometheus.CounterVec
	pageDuration *prometheus.HistogramVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_jobs_started_total",
			Help: "Total ingestion jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_jobs_completed_total",
			Help: "Total ingestion jobs completed partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_jobs_running",
			Help: "Current number of running ingestion jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_job_runtime_seconds",
			Help:    "Wall time per completed ingestion job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		pagesStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_pages_stored_total",
			Help: "Pages chunked, embedded, and stored per tenant.",
		}, []string{"tenant"}),
		pagesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_pages_failed_total",
			Help: "Pages that failed during ingestion per tenant.",
		}, []string{"tenant"}),
		chunksStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_chunks_stored_total",
			Help: "Embedded chunks stored per tenant.",
		}, []string{"tenant"}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_page_duration_seconds",
			Help:    "Per-page ingestion latency per tenant.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"tenant"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.pagesStored,
		s.pagesFailed,
		s.chunksStored,
		s.pageDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
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
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case progress.StageJobDone:
		s.jobsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
		s.completeJob(evt.JobID)
	case progress.StageJobError:
		s.jobsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
		s.completeJob(evt.JobID)
	case progress.StagePageStored:
		tenant := tenantLabel(evt)
		s.pagesStored.WithLabelValues(tenant).Inc()
		if evt.Chunks > 0 {
			s.chunksStored.WithLabelValues(tenant).Add(float64(evt.Chunks))
		}
		if evt.Dur > 0 {
			s.pageDuration.WithLabelValues(tenant).Observe(evt.Dur.Seconds())
		}
	case progress.StagePageFailed:
		s.pagesFailed.WithLabelValues(tenantLabel(evt)).Inc()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) completeJob(jobID string) {
	if s.tracker.complete(jobID) {
		s.jobsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func tenantLabel(evt progress.Event) string {
	if evt.Tenant == "" {
		return "unknown"
	}
	return evt.Tenant
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
