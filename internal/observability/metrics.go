// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pass outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Detection metrics
	PassesTotal       *prometheus.CounterVec
	PassDuration      prometheus.Histogram
	CandidatesPerPass prometheus.Histogram
	TokensDetected    *prometheus.CounterVec
	RestartsTotal     *prometheus.CounterVec
	StoreWriteErrors  prometheus.Counter
	ActiveGate        prometheus.Gauge
	ConnectedSessions prometheus.Gauge

	// Oracle metrics
	OracleCalls     *prometheus.CounterVec
	OracleBatchSize prometheus.Histogram
	RPCCallLatency  *prometheus.HistogramVec

	// Catalog metrics
	TokenListRefreshes *prometheus.CounterVec
	TokenListSize      *prometheus.GaugeVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPass prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_detector"
	}

	return &Metrics{
		PassesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "passes_total",
			Help:      "Total number of reconciliation passes by outcome",
		}, []string{"outcome"}),
		PassDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "pass_duration_seconds",
			Help:      "Reconciliation pass duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		CandidatesPerPass: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "candidates_per_pass",
			Help:      "Number of candidate addresses checked per pass",
			Buckets:   []float64{0, 10, 100, 500, 1000, 2500, 5000, 10000},
		}),
		TokensDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "tokens_detected_total",
			Help:      "Total number of tokens detected by chain",
		}, []string{"chain_id"}),
		RestartsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "restarts_total",
			Help:      "Total number of detection restarts by reason",
		}, []string{"reason"}),
		StoreWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "store_write_errors_total",
			Help:      "Total number of failed detected-token writes",
		}),
		ActiveGate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "active",
			Help:      "1 when the engine is unlocked and open",
		}),
		ConnectedSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "connected_sessions",
			Help:      "Number of connected UI sessions",
		}),

		OracleCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "calls_total",
			Help:      "Total number of balance oracle calls by status",
		}, []string{"status"}),
		OracleBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "batch_size",
			Help:      "Number of token addresses per oracle call",
			Buckets:   []float64{1, 10, 100, 250, 500, 750, 1000},
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ethereum",
			Name:      "rpc_call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		TokenListRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "refreshes_total",
			Help:      "Total number of token list refreshes by source",
		}, []string{"source"}),
		TokenListSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "token_list_size",
			Help:      "Number of tokens in the catalog by chain",
		}, []string{"chain_id"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulPass: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pass_timestamp",
			Help:      "Unix timestamp of last completed pass",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPass records a finished pass.
func RecordPass(outcome string, seconds float64, candidates int) {
	DefaultMetrics.PassesTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSkipped {
		return
	}
	DefaultMetrics.PassDuration.Observe(seconds)
	DefaultMetrics.CandidatesPerPass.Observe(float64(candidates))
}

// RecordPassCompleted updates the last successful pass gauge.
func RecordPassCompleted(unixSeconds float64) {
	DefaultMetrics.LastSuccessfulPass.Set(unixSeconds)
}

// RecordDetections increments the detected tokens counter.
func RecordDetections(chainID string, n int) {
	DefaultMetrics.TokensDetected.WithLabelValues(chainID).Add(float64(n))
}

// RecordRestart increments the restart counter.
func RecordRestart(reason string) {
	DefaultMetrics.RestartsTotal.WithLabelValues(reason).Inc()
}

// RecordStoreWriteError increments the store write error counter.
func RecordStoreWriteError() {
	DefaultMetrics.StoreWriteErrors.Inc()
}

// SetActive updates the activity gauge.
func SetActive(active bool) {
	if active {
		DefaultMetrics.ActiveGate.Set(1)
		return
	}
	DefaultMetrics.ActiveGate.Set(0)
}

// SetConnectedSessions updates the connected sessions gauge.
func SetConnectedSessions(n int) {
	DefaultMetrics.ConnectedSessions.Set(float64(n))
}

// RecordOracleCall records a balance oracle call.
func RecordOracleCall(batchSize int, err error) {
	DefaultMetrics.OracleBatchSize.Observe(float64(batchSize))
	if err != nil {
		DefaultMetrics.OracleCalls.WithLabelValues("error").Inc()
		return
	}
	DefaultMetrics.OracleCalls.WithLabelValues("ok").Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordTokenListRefresh records a token list refresh for a chain.
func RecordTokenListRefresh(source, chainID string, size int) {
	DefaultMetrics.TokenListRefreshes.WithLabelValues(source).Inc()
	DefaultMetrics.TokenListSize.WithLabelValues(chainID).Set(float64(size))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
