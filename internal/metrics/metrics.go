package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	stageRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsmith",
			Name:      "stage_runs_total",
			Help:      "Pipeline stage executions by stage and result (hit, miss, error)",
		},
		[]string{"stage", "result"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsmith",
			Name:      "stage_duration_seconds",
			Help:      "Duration of computed (non-cached) stage executions",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsmith",
			Name:      "store_errors_total",
			Help:      "Artifact store failures by operation",
		},
		[]string{"op"},
	)

	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsmith",
			Name:      "jobs_processed_total",
			Help:      "Processing jobs by result (success, failed, cancelled)",
		},
		[]string{"result"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docsmith",
			Name:      "queue_depth",
			Help:      "Pending jobs in the processing stream",
		},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(stageRuns, stageDuration, storeErrors, jobsProcessed, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func StageRun(stage, result string)            { stageRuns.WithLabelValues(stage, result).Inc() }
func StageDuration(stage string, secs float64) { stageDuration.WithLabelValues(stage).Observe(secs) }
func StoreError(op string)                     { storeErrors.WithLabelValues(op).Inc() }
func JobProcessed(result string)               { jobsProcessed.WithLabelValues(result).Inc() }
func SetQueueDepth(v int64)                    { queueDepth.Set(float64(v)) }
