package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "release_radar"

// Recorder 管道各阶段的计数器。nil Recorder 上的调用全部是空操作
type Recorder struct {
	registry *prometheus.Registry

	ingestRuns    *prometheus.CounterVec
	snapshots     prometheus.Counter
	repoErrors    *prometheus.CounterVec
	analyses      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	comparisons   *prometheus.CounterVec
}

// New 创建独立的 registry，避免与全局 DefaultRegisterer 冲突
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		ingestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Ingest runs by terminal status.",
		}, []string{"status"}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_created_total",
			Help:      "Snapshots persisted for new releases.",
		}),
		repoErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_errors_total",
			Help:      "Per-repository ingest failures.",
		}, []string{"repository"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analyses produced, by source (llm or heuristic).",
		}, []string{"source"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification delivery attempts by sink and outcome.",
		}, []string{"sink", "outcome"}),
		comparisons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comparisons_total",
			Help:      "Comparison runs by mode.",
		}, []string{"mode"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ingestRuns, r.snapshots, r.repoErrors, r.analyses, r.notifications, r.comparisons,
	)
	return r
}

func (r *Recorder) IngestRun(status string) {
	if r == nil {
		return
	}
	r.ingestRuns.WithLabelValues(status).Inc()
}

func (r *Recorder) SnapshotCreated() {
	if r == nil {
		return
	}
	r.snapshots.Inc()
}

func (r *Recorder) RepositoryError(repoID string) {
	if r == nil {
		return
	}
	r.repoErrors.WithLabelValues(repoID).Inc()
}

func (r *Recorder) Analysis(source string) {
	if r == nil {
		return
	}
	r.analyses.WithLabelValues(source).Inc()
}

// Notification outcome 为 delivered 或 failed
func (r *Recorder) Notification(sink string, delivered bool) {
	if r == nil {
		return
	}
	outcome := "failed"
	if delivered {
		outcome = "delivered"
	}
	r.notifications.WithLabelValues(sink, outcome).Inc()
}

func (r *Recorder) Comparison(mode string) {
	if r == nil {
		return
	}
	r.comparisons.WithLabelValues(mode).Inc()
}

// Handler 暴露 /metrics
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
