// Package metrics exposes Prometheus collectors for the strategy runner.
//
//   - polytrader_iterations_total              strategy ticks completed
//   - polytrader_tick_duration_seconds         wall time of one tick
//   - polytrader_actions_total{kind,state}     actions by final lifecycle state
//   - polytrader_exchange_calls_total{op,result}
//   - polytrader_exchange_latency_seconds{op}
//   - polytrader_permission_level              effective permission lock level
//   - polytrader_patience_waiting              requests waiting for approval
//   - polytrader_backoff_total                 backoff episodes entered
//   - polytrader_book_updates_total{type}      order book messages applied
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	iterations      prometheus.Counter
	tickDuration    prometheus.Histogram
	actions         *prometheus.CounterVec
	exchangeCalls   *prometheus.CounterVec
	exchangeLatency *prometheus.HistogramVec
	permissionLevel prometheus.Gauge
	patienceWaiting prometheus.Gauge
	backoffs        prometheus.Counter
	bookUpdates     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polytrader_iterations_total",
			Help: "Strategy iterations completed",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "polytrader_tick_duration_seconds",
			Help:    "Wall time of one strategy tick",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polytrader_actions_total",
			Help: "Actions by kind and final lifecycle state",
		}, []string{"kind", "state"}),
		exchangeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polytrader_exchange_calls_total",
			Help: "Exchange client calls by operation and result (ok|error)",
		}, []string{"op", "result"}),
		exchangeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "polytrader_exchange_latency_seconds",
			Help:    "Exchange client call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		permissionLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polytrader_permission_level",
			Help: "Effective permission lock level (0 normal, 10 cancel_only, 20 suspend, 100 backoff)",
		}),
		patienceWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polytrader_patience_waiting",
			Help: "Requests waiting in the patience engine",
		}),
		backoffs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polytrader_backoff_total",
			Help: "Backoff episodes entered",
		}),
		bookUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polytrader_book_updates_total",
			Help: "Order book messages applied (book|price_change)",
		}, []string{"type"}),
	}
	reg.MustRegister(
		m.iterations, m.tickDuration, m.actions,
		m.exchangeCalls, m.exchangeLatency,
		m.permissionLevel, m.patienceWaiting, m.backoffs, m.bookUpdates,
	)
	return m
}

// ObserveTick records one completed iteration.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.iterations.Inc()
	m.tickDuration.Observe(d.Seconds())
}

// ObserveAction counts an action that reached its final state.
func (m *Metrics) ObserveAction(kind, state string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(kind, state).Inc()
}

// ObserveExchangeCall records one exchange client call.
func (m *Metrics) ObserveExchangeCall(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.exchangeCalls.WithLabelValues(op, result).Inc()
	m.exchangeLatency.WithLabelValues(op).Observe(d.Seconds())
}

// SetPermissionLevel publishes the effective lock level.
func (m *Metrics) SetPermissionLevel(level int) {
	if m == nil {
		return
	}
	m.permissionLevel.Set(float64(level))
}

// SetPatienceWaiting publishes the number of waiting requests.
func (m *Metrics) SetPatienceWaiting(n int) {
	if m == nil {
		return
	}
	m.patienceWaiting.Set(float64(n))
}

// IncBackoff counts a new backoff episode.
func (m *Metrics) IncBackoff() {
	if m == nil {
		return
	}
	m.backoffs.Inc()
}

// IncBookUpdate counts an applied order book message.
func (m *Metrics) IncBookUpdate(msgType string) {
	if m == nil {
		return
	}
	m.bookUpdates.WithLabelValues(msgType).Inc()
}
