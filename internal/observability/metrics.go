// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the settlement engine.
type Metrics struct {
	// Intent lifecycle metrics
	IntentsCreated   *prometheus.CounterVec // kind: swap|purchase|purchase_payment
	IntentsConfirmed *prometheus.CounterVec // kind: swap|purchase
	IntentsRejected  *prometheus.CounterVec // reason: not_found|ownership|on_chain|amount_mismatch

	// Settlement metrics
	ChefcoinsCredited prometheus.Counter
	ChefcoinsDebited  prometheus.Counter
	RedemptionsTotal  *prometheus.CounterVec // outcome: completed|failed|insufficient_balance
	RefundsTotal      prometheus.Counter

	// Queue processor metrics
	BatchPassesTotal    prometheus.Counter
	RequestsProcessed   prometheus.Counter
	RequestsFailed      prometheus.Counter
	BatchPassDuration   prometheus.Histogram
	PendingQueueDepth   prometheus.Gauge
	LastSuccessfulPass  prometheus.Gauge

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec // method

	// Ledger metrics
	LedgerMutationErrors *prometheus.CounterVec // op
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "chefcoin_bridge"
	}

	return &Metrics{
		IntentsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "intents_created_total",
			Help:      "Total number of swap/purchase intents created",
		}, []string{"kind"}),
		IntentsConfirmed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "intents_confirmed_total",
			Help:      "Total number of intents settled successfully",
		}, []string{"kind"}),
		IntentsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "intents_rejected_total",
			Help:      "Total number of intent confirmations rejected",
		}, []string{"reason"}),
		ChefcoinsCredited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "chefcoins_credited_total",
			Help:      "Total chefcoins credited by settlements",
		}),
		ChefcoinsDebited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "chefcoins_debited_total",
			Help:      "Total chefcoins debited by redemptions",
		}),
		RedemptionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "redemptions_total",
			Help:      "Total treasury-funded redemptions by outcome",
		}, []string{"outcome"}),
		RefundsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "refunds_total",
			Help:      "Total compensating refunds applied",
		}),
		BatchPassesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "batch_passes_total",
			Help:      "Total queue processor batch passes",
		}),
		RequestsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "requests_processed_total",
			Help:      "Total swap requests settled by the processor",
		}),
		RequestsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "requests_failed_total",
			Help:      "Total swap requests marked failed by the processor",
		}),
		BatchPassDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "batch_pass_duration_seconds",
			Help:      "Duration of queue processor batch passes",
			Buckets:   prometheus.DefBuckets,
		}),
		PendingQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pending_depth",
			Help:      "Pending swap requests observed at the start of the last pass",
		}),
		LastSuccessfulPass: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "last_successful_pass_timestamp",
			Help:      "Unix timestamp of the last completed batch pass",
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Latency of Solana RPC calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
		LedgerMutationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "mutation_errors_total",
			Help:      "Balance ledger mutation failures by operation",
		}, []string{"op"}),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
