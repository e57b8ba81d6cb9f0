package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded per reconciled order.
const (
	OutcomeVerified = "verified"
	OutcomeFailed   = "failed"
	OutcomePending  = "pending"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
	OutcomeSkipped  = "skipped"
)

// ReconcilerMetrics captures reconcile-loop health signals.
type ReconcilerMetrics struct {
	runs        prometheus.Counter
	runErrors   prometheus.Counter
	runDuration prometheus.Histogram
	orders      *prometheus.CounterVec
	pending     prometheus.Gauge
}

var (
	reconcilerOnce    sync.Once
	reconcilerMetrics *ReconcilerMetrics
)

// Reconciler returns the singleton reconciler metrics registry.
func Reconciler() *ReconcilerMetrics {
	reconcilerOnce.Do(func() {
		reconcilerMetrics = newReconcilerMetrics(prometheus.DefaultRegisterer)
	})
	return reconcilerMetrics
}

// ResetReconcilerMetricsForTest resets the singleton for tests. Collectors
// are unregistered first so the next Reconciler() call can register cleanly.
func ResetReconcilerMetricsForTest() {
	if reconcilerMetrics != nil {
		prometheus.DefaultRegisterer.Unregister(reconcilerMetrics.runs)
		prometheus.DefaultRegisterer.Unregister(reconcilerMetrics.runErrors)
		prometheus.DefaultRegisterer.Unregister(reconcilerMetrics.runDuration)
		prometheus.DefaultRegisterer.Unregister(reconcilerMetrics.orders)
		prometheus.DefaultRegisterer.Unregister(reconcilerMetrics.pending)
	}
	reconcilerOnce = sync.Once{}
	reconcilerMetrics = nil
}

func newReconcilerMetrics(registerer prometheus.Registerer) *ReconcilerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &ReconcilerMetrics{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rooflens_reconciler_runs_total",
			Help: "Total reconcile passes.",
		}),
		runErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rooflens_reconciler_run_errors_total",
			Help: "Reconcile passes that returned an error.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rooflens_reconciler_run_duration_seconds",
			Help:    "Duration of a full reconcile pass.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rooflens_reconciler_orders_total",
			Help: "Orders examined per pass, by outcome.",
		}, []string{"outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rooflens_reconciler_pending_orders",
			Help: "Pending orders seen at the start of the last pass.",
		}),
	}
	registerer.MustRegister(m.runs, m.runErrors, m.runDuration, m.orders, m.pending)
	return m
}

func (m *ReconcilerMetrics) IncRun()                         { m.runs.Inc() }
func (m *ReconcilerMetrics) IncRunError()                    { m.runErrors.Inc() }
func (m *ReconcilerMetrics) ObserveRun(d time.Duration)      { m.runDuration.Observe(d.Seconds()) }
func (m *ReconcilerMetrics) IncOrder(outcome string)         { m.orders.WithLabelValues(outcome).Inc() }
func (m *ReconcilerMetrics) SetPending(n int)                { m.pending.Set(float64(n)) }
