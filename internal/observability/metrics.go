package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the vault. Components tolerate
// a nil *Metrics so unit tests can run without a registry.
type Metrics struct {
	// --- Engine operations ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec

	// --- Oracle & pricing ---
	StaleQuotes   prometheus.Counter
	InvalidQuotes prometheus.Counter

	// --- Liquidation ---
	LiquidationsExecuted prometheus.Counter
	LiquidationsRejected *prometheus.CounterVec

	// --- Event pipeline ---
	EventsEmitted *prometheus.CounterVec
	EventsDropped prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- Publisher ---
	PublishErrors   prometheus.Counter
	EventsPublished *prometheus.CounterVec

	// --- Read API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ops_applied_total",
			Help: "Engine operations completed",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ops_rejected_total",
			Help: "Engine operations rejected",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_op_duration_seconds",
			Help:    "Engine operation duration",
			Buckets: opBuckets,
		}, []string{"op"}),

		StaleQuotes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_oracle_stale_quotes_total",
			Help: "Guarded reads rejected for staleness",
		}),

		InvalidQuotes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_oracle_invalid_quotes_total",
			Help: "Quotes rejected for non-positive price",
		}),

		LiquidationsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_liquidations_executed_total",
			Help: "Liquidations completed",
		}),

		LiquidationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_liquidations_rejected_total",
			Help: "Liquidations rejected",
		}, []string{"reason"}),

		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_events_emitted_total",
			Help: "Events emitted into the pipeline",
		}, []string{"event_type"}),

		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_events_dropped_total",
			Help: "Events dropped due to full pipeline buffer",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_publish_errors_total",
			Help: "NATS publish errors",
		}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_events_published_total",
			Help: "Events published to NATS",
		}, []string{"event_type"}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_query_requests_total",
			Help: "Read API requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_query_duration_seconds",
			Help:    "Read API latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}
