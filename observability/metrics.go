package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type httpMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// HTTP returns the lazily-initialised registry recording gateway request
// activity.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nexum",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by route, method and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nexum",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total gateway errors segmented by route, method and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nexum",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nexum",
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.errors,
			httpRegistry.latency,
			httpRegistry.throttles,
		)
	})
	return httpRegistry
}

// Observe records the outcome of a gateway request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *httpMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route and
// reason.
func (m *httpMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// LedgerMetrics tracks ledger operations and the pool's headline figures.
type LedgerMetrics struct {
	operations  *prometheus.CounterVec
	failures    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	deposits    prometheus.Gauge
	borrowed    prometheus.Gauge
	reserves    prometheus.Gauge
	utilization prometheus.Gauge
	loans       prometheus.Gauge
	paused      *prometheus.GaugeVec
}

// Ledger returns the singleton metrics registry for the ledger.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nexum",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Count of ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nexum",
				Subsystem: "ledger",
				Name:      "failures_total",
				Help:      "Count of rejected ledger operations segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nexum",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			deposits: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nexum",
				Subsystem: "vault",
				Name:      "total_deposits",
				Help:      "LP-owned book value of the vault in the smallest currency unit.",
			}),
			borrowed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nexum",
				Subsystem: "vault",
				Name:      "total_borrowed",
				Help:      "Outstanding principal lent out by the vault.",
			}),
			reserves: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nexum",
				Subsystem: "vault",
				Name:      "protocol_reserves",
				Help:      "Protocol reserves held outside LP book value.",
			}),
			utilization: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nexum",
				Subsystem: "vault",
				Name:      "utilization_ratio",
				Help:      "Ratio of borrowed to deposited funds (0-1).",
			}),
			loans: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nexum",
				Subsystem: "borrow",
				Name:      "loans_originated",
				Help:      "Number of loans originated since genesis.",
			}),
			paused: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "nexum",
				Subsystem: "ledger",
				Name:      "module_paused",
				Help:      "Indicates whether a module pause flag is engaged (1) or not (0).",
			}, []string{"module"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.failures,
			ledgerRegistry.latency,
			ledgerRegistry.deposits,
			ledgerRegistry.borrowed,
			ledgerRegistry.reserves,
			ledgerRegistry.utilization,
			ledgerRegistry.loans,
			ledgerRegistry.paused,
		)
	})
	return ledgerRegistry
}

// Observe records the execution metrics for a ledger operation.
func (m *LedgerMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		reason := strings.TrimSpace(err.Error())
		if reason == "" {
			reason = "unknown"
		}
		m.failures.WithLabelValues(op, reason).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordVault updates the vault gauges.
func (m *LedgerMetrics) RecordVault(deposits, borrowed, reserves *big.Int) {
	if m == nil {
		return
	}
	depositVal := bigToFloat(deposits)
	borrowedVal := bigToFloat(borrowed)
	m.deposits.Set(depositVal)
	m.borrowed.Set(borrowedVal)
	m.reserves.Set(bigToFloat(reserves))
	ratio := 0.0
	if depositVal > 0 {
		ratio = borrowedVal / depositVal
		if ratio > 1 {
			ratio = 1
		}
	}
	m.utilization.Set(ratio)
}

// RecordLoans sets the originated loan gauge.
func (m *LedgerMetrics) RecordLoans(total uint64) {
	if m == nil {
		return
	}
	m.loans.Set(float64(total))
}

// SetPaused toggles the pause gauge of a module.
func (m *LedgerMetrics) SetPaused(module string, engaged bool) {
	if m == nil {
		return
	}
	module = strings.TrimSpace(module)
	if module == "" {
		module = "unknown"
	}
	if engaged {
		m.paused.WithLabelValues(module).Set(1)
		return
	}
	m.paused.WithLabelValues(module).Set(0)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
