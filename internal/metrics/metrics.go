// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wallet_ledger"

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ledgerOps        *prometheus.CounterVec
	depositedTotal   prometheus.Counter
	transferredTotal prometheus.Counter
	integrityAlarms  prometheus.Counter
	webhookEvents    *prometheus.CounterVec
	authFailures     *prometheus.CounterVec
	reconcileRuns    *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in tests
// to avoid clashing with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ledgerOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger engine operations partitioned by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		depositedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "deposited_minor_units_total",
				Help:      "Minor currency units credited through confirmed deposits.",
			},
		),
		transferredTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "transferred_minor_units_total",
				Help:      "Minor currency units moved between wallets.",
			},
		),
		integrityAlarms: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "integrity_alarms_total",
				Help:      "Pending deposits whose wallet could not be located at credit time.",
			},
		),
		webhookEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "webhook_events_total",
				Help:      "Gateway callbacks partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		authFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "failures_total",
				Help:      "Rejected credentials partitioned by method and reason.",
			},
			[]string{"method", "reason"},
		),
		reconcileRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "reconcile_runs_total",
				Help:      "Pending deposit reconciliation runs partitioned by result.",
			},
			[]string{"result"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency partitioned by method, route and status.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
}

func (m *Metrics) LedgerOp(operation, outcome string) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) Deposited(amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.depositedTotal.Add(float64(amount))
}

func (m *Metrics) Transferred(amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.transferredTotal.Add(float64(amount))
}

func (m *Metrics) IntegrityAlarm() {
	if m == nil {
		return
	}
	m.integrityAlarms.Inc()
}

func (m *Metrics) WebhookEvent(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AuthFailure(method, reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(method, reason).Inc()
}

func (m *Metrics) ReconcileRun(result string) {
	if m == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
