package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry bundles the prometheus instruments for the pipeline and the
// replication engine. A nil *Telemetry is a no-op so tests can skip metrics.
type Telemetry struct {
	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	documents     *prometheus.CounterVec
	replicaPulls  prometheus.Counter
	replicaRows   prometheus.Counter
}

// New registers the halo metrics on the given registerer.
func New(reg prometheus.Registerer) *Telemetry {
	factory := promauto.With(reg)
	return &Telemetry{
		stageRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "halo_pipeline_stage_runs_total",
			Help: "Pipeline stage executions by stage and outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "halo_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage wall-clock duration.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
		documents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "halo_documents_ingested_total",
			Help: "Documents written to the store by originating stage.",
		}, []string{"stage"}),
		replicaPulls: factory.NewCounter(prometheus.CounterOpts{
			Name: "halo_replica_pull_batches_total",
			Help: "Replica pull batches executed.",
		}),
		replicaRows: factory.NewCounter(prometheus.CounterOpts{
			Name: "halo_replica_rows_applied_total",
			Help: "Rows applied to local replicas.",
		}),
	}
}

func (t *Telemetry) ObserveStage(stage string, d time.Duration, ok bool) {
	if t == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	t.stageRuns.WithLabelValues(stage, outcome).Inc()
	t.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (t *Telemetry) AddDocuments(stage string, n int) {
	if t == nil || n <= 0 {
		return
	}
	t.documents.WithLabelValues(stage).Add(float64(n))
}

func (t *Telemetry) ObservePull(rows int) {
	if t == nil {
		return
	}
	t.replicaPulls.Inc()
	if rows > 0 {
		t.replicaRows.Add(float64(rows))
	}
}
