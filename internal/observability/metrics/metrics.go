package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RefreshResultOK    = "ok"
	RefreshResultError = "error"

	ResolutionOutcomeResolved   = "resolved"
	ResolutionOutcomeUnresolved = "unresolved"
)

// CoreMetrics captures settlement core health signals.
type CoreMetrics struct {
	sourceRefreshes   *prometheus.CounterVec
	rateResolutions   *prometheus.CounterVec
	methodFailures    *prometheus.CounterVec
	statusTransitions *prometheus.CounterVec
	expirationRuns    prometheus.Counter
	expiredInvoices   prometheus.Counter
	expirationLoop    prometheus.Histogram
}

var (
	coreMetricsOnce sync.Once
	coreMetrics     *CoreMetrics
)

// Core returns the singleton settlement core metrics registry.
func Core() *CoreMetrics {
	coreMetricsOnce.Do(func() {
		coreMetrics = newCoreMetrics(prometheus.DefaultRegisterer)
	})
	return coreMetrics
}

// ResetCoreMetricsForTest resets the metrics singleton for tests.
func ResetCoreMetricsForTest() {
	coreMetricsOnce = sync.Once{}
	coreMetrics = nil
}

func newCoreMetrics(registerer prometheus.Registerer) *CoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &CoreMetrics{
		sourceRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coinflow_exchange_source_refresh_total",
			Help: "Exchange source refresh attempts by result.",
		}, []string{"source", "result"}),
		rateResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coinflow_rate_resolution_total",
			Help: "Rate rule resolutions by outcome.",
		}, []string{"outcome"}),
		methodFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coinflow_payment_method_failures_total",
			Help: "Per-wallet payment method creation failures by currency.",
		}, []string{"currency"}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coinflow_invoice_transitions_total",
			Help: "Invoice status transitions applied.",
		}, []string{"status"}),
		expirationRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coinflow_expiration_runs_total",
			Help: "Expiration scheduler passes.",
		}),
		expiredInvoices: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coinflow_expired_invoices_total",
			Help: "Invoices transitioned to expired by the scheduler.",
		}),
		expirationLoop: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coinflow_expiration_run_seconds",
			Help:    "Duration of one expiration scheduler pass.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registerer.MustRegister(
		m.sourceRefreshes,
		m.rateResolutions,
		m.methodFailures,
		m.statusTransitions,
		m.expirationRuns,
		m.expiredInvoices,
		m.expirationLoop,
	)
	return m
}

func (m *CoreMetrics) IncSourceRefresh(source, result string) {
	if m == nil {
		return
	}
	m.sourceRefreshes.WithLabelValues(strings.ToLower(source), result).Inc()
}

func (m *CoreMetrics) IncRateResolution(outcome string) {
	if m == nil {
		return
	}
	m.rateResolutions.WithLabelValues(outcome).Inc()
}

func (m *CoreMetrics) IncMethodFailure(currency string) {
	if m == nil {
		return
	}
	m.methodFailures.WithLabelValues(strings.ToLower(currency)).Inc()
}

func (m *CoreMetrics) IncStatusTransition(status string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(strings.ToLower(status)).Inc()
}

func (m *CoreMetrics) IncExpirationRun() {
	if m == nil {
		return
	}
	m.expirationRuns.Inc()
}

func (m *CoreMetrics) AddExpiredInvoices(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expiredInvoices.Add(float64(n))
}

func (m *CoreMetrics) ObserveExpirationRun(d time.Duration) {
	if m == nil {
		return
	}
	m.expirationLoop.Observe(d.Seconds())
}
