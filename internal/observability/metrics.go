// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Transfer metrics
	Withdrawals        *prometheus.CounterVec
	WithdrawalDuration prometheus.Histogram
	WithdrawnETH       prometheus.Counter

	// Endpoint pool metrics
	EndpointProbes   *prometheus.CounterVec
	HandleDiscards   prometheus.Counter
	ActiveConnection prometheus.Gauge

	// Accrual metrics
	AccrualTicks       prometheus.Counter
	FlashLoansExecuted prometheus.Counter
	TotalEarnedUSD     prometheus.Gauge

	// Snapshot journal metrics
	SnapshotFlushes prometheus.Counter
	SnapshotErrors  prometheus.Counter

	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "apex_trader"
	}

	return &Metrics{
		Withdrawals: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "treasury",
			Name:      "withdrawals_total",
			Help:      "Total withdrawal attempts by outcome",
		}, []string{"outcome"}),
		WithdrawalDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "treasury",
			Name:      "withdrawal_duration_seconds",
			Help:      "End-to-end withdrawal duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 90, 120, 300},
		}),
		WithdrawnETH: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "treasury",
			Name:      "withdrawn_eth_total",
			Help:      "Total ETH withdrawn through confirmed transfers",
		}),
		EndpointProbes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "endpoint_probes_total",
			Help:      "Endpoint liveness probes by result",
		}, []string{"result"}),
		HandleDiscards: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "handle_discards_total",
			Help:      "Active connection handles discarded as stale",
		}),
		ActiveConnection: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "active_connection",
			Help:      "Whether an endpoint handle is currently active (0 or 1)",
		}),
		AccrualTicks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "accrual_ticks_total",
			Help:      "Total accrual loop ticks",
		}),
		FlashLoansExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "flash_loans_executed_total",
			Help:      "Total simulated flash-loan executions",
		}),
		TotalEarnedUSD: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "total_earned_usd",
			Help:      "Current simulated total earnings in USD",
		}),
		SnapshotFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "snapshot_flushes_total",
			Help:      "Earnings snapshots written to the snapshot store",
		}),
		SnapshotErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "snapshot_errors_total",
			Help:      "Earnings snapshot writes that failed",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordWithdrawal records a withdrawal attempt outcome and its duration.
func RecordWithdrawal(outcome string, durationSeconds float64) {
	DefaultMetrics.Withdrawals.WithLabelValues(outcome).Inc()
	if durationSeconds > 0 {
		DefaultMetrics.WithdrawalDuration.Observe(durationSeconds)
	}
}

// RecordWithdrawnETH accounts a confirmed transfer amount.
func RecordWithdrawnETH(amountETH float64) {
	DefaultMetrics.WithdrawnETH.Add(amountETH)
}

// RecordEndpointProbe records one endpoint liveness probe result.
func RecordEndpointProbe(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	DefaultMetrics.EndpointProbes.WithLabelValues(result).Inc()
}

// RecordHandleDiscard counts a stale handle being dropped.
func RecordHandleDiscard() {
	DefaultMetrics.HandleDiscards.Inc()
}

// SetConnected updates the active connection gauge.
func SetConnected(connected bool) {
	if connected {
		DefaultMetrics.ActiveConnection.Set(1)
	} else {
		DefaultMetrics.ActiveConnection.Set(0)
	}
}

// RecordAccrualTick increments the accrual tick counter.
func RecordAccrualTick() {
	DefaultMetrics.AccrualTicks.Inc()
}

// RecordFlashLoan increments the flash-loan execution counter.
func RecordFlashLoan() {
	DefaultMetrics.FlashLoansExecuted.Inc()
}

// SetTotalEarned updates the simulated earnings gauge.
func SetTotalEarned(usd float64) {
	DefaultMetrics.TotalEarnedUSD.Set(usd)
}

// RecordSnapshotFlush increments the snapshot flush counter.
func RecordSnapshotFlush() {
	DefaultMetrics.SnapshotFlushes.Inc()
}

// RecordSnapshotError increments the snapshot error counter.
func RecordSnapshotError() {
	DefaultMetrics.SnapshotErrors.Inc()
}

// RecordRequest records an HTTP request duration.
func RecordRequest(route, code string, seconds float64) {
	DefaultMetrics.RequestDuration.WithLabelValues(route, code).Observe(seconds)
}
