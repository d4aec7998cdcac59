package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coreerrors "fundcore/core/errors"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// backoffice API activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fundcore",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total backoffice API requests segmented by route and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fundcore",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total backoffice API errors segmented by route and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fundcore",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for backoffice API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fundcore",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LedgerMetrics wraps collectors describing state transitions applied by the
// settlement core.
type LedgerMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	breakerTrips *prometheus.CounterVec
	reserveCash  *prometheus.GaugeVec
	nav          *prometheus.GaugeVec
	auditRecords prometheus.Counter
}

// Ledger exposes the singleton registry for settlement core metrics.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fundcore",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Count of ledger operations segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fundcore",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
			breakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fundcore",
				Subsystem: "breaker",
				Name:      "trips_total",
				Help:      "Count of circuit breaker trips segmented by fund token and reason.",
			}, []string{"token", "reason"}),
			reserveCash: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "fundcore",
				Subsystem: "pool",
				Name:      "reserve_cash",
				Help:      "Cash held by the liquidity reserve of each fund, in whole units.",
			}, []string{"token"}),
			nav: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "fundcore",
				Subsystem: "oracle",
				Name:      "nav",
				Help:      "Latest net asset value per fund token, in whole units.",
			}, []string{"token"}),
			auditRecords: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "fundcore",
				Subsystem: "audit",
				Name:      "records_total",
				Help:      "Count of audit records appended to the hash chain.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.latency,
			ledgerRegistry.breakerTrips,
			ledgerRegistry.reserveCash,
			ledgerRegistry.nav,
			ledgerRegistry.auditRecords,
		)
	})
	return ledgerRegistry
}

// ObserveOperation records a committed or rejected ledger operation. Rejected
// operations are labelled with their error kind.
func (m *LedgerMetrics) ObserveOperation(kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = "unknown"
	}
	m.operations.WithLabelValues(kind, Outcome(err)).Inc()
	m.latency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordBreakerTrip increments the trip counter for the supplied token.
func (m *LedgerMetrics) RecordBreakerTrip(token, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.breakerTrips.WithLabelValues(strings.ToUpper(strings.TrimSpace(token)), reason).Inc()
}

// SetReserveCash publishes the reserve cash balance for a fund.
func (m *LedgerMetrics) SetReserveCash(token string, amount *big.Int) {
	if m == nil {
		return
	}
	m.reserveCash.WithLabelValues(strings.ToUpper(token)).Set(toUnits(amount))
}

// SetNAV publishes the latest NAV for a fund.
func (m *LedgerMetrics) SetNAV(token string, nav *big.Int) {
	if m == nil {
		return
	}
	m.nav.WithLabelValues(strings.ToUpper(token)).Set(toUnits(nav))
}

// RecordAudit increments the audit chain counter.
func (m *LedgerMetrics) RecordAudit() {
	if m == nil {
		return
	}
	m.auditRecords.Inc()
}

// Outcome maps an operation error to a stable metric label.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	return coreerrors.KindOf(err).String()
}

// toUnits converts an 8-decimal fixed point amount into a float for gauges.
func toUnits(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), big.NewFloat(1e8)).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}
