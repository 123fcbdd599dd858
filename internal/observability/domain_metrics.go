package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_generations_total",
			Help: "Total number of SQL generation attempts by outcome.",
		},
		[]string{"outcome"},
	)
	generationLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askql_generation_latency_ms",
			Help:    "Language model round-trip latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 20000},
		},
	)
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_executions_total",
			Help: "Total number of executed statements by outcome.",
		},
		[]string{"outcome"},
	)
	executionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askql_execution_latency_ms",
			Help:    "Statement execution latency in milliseconds, including connection setup.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	transcriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_transcriptions_total",
			Help: "Total number of speech transcription attempts by outcome.",
		},
		[]string{"outcome"},
	)
	guardRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askql_guard_rejections_total",
			Help: "Total number of generated statements rejected by the SQL guard.",
		},
	)
	archivedResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_archived_results_total",
			Help: "Total number of result archive attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		generationsTotal,
		generationLatencyMs,
		executionsTotal,
		executionLatencyMs,
		transcriptionsTotal,
		guardRejectionsTotal,
		archivedResultsTotal,
	)
}

func ObserveGeneration(outcome string, elapsed time.Duration) {
	generationsTotal.WithLabelValues(outcome).Inc()
	generationLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveExecution(outcome string, elapsed time.Duration) {
	executionsTotal.WithLabelValues(outcome).Inc()
	executionLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveTranscription(outcome string) {
	transcriptionsTotal.WithLabelValues(outcome).Inc()
}

func IncrementGuardRejections() {
	guardRejectionsTotal.Inc()
}

func ObserveArchive(outcome string) {
	archivedResultsTotal.WithLabelValues(outcome).Inc()
}
