package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ticks              prometheus.Counter
	tickDuration       prometheus.Histogram
	evaluations        *prometheus.CounterVec
	priceFetchFailures *prometheus.CounterVec
	hedgeOrders        *prometheus.CounterVec
	notifyFailures     prometheus.Counter
	monitored          prometheus.Gauge
}

// NewMetrics registers the engine collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hedgebot",
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Total number of completed evaluation passes",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hedgebot",
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one evaluation pass",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hedgebot",
			Subsystem: "engine",
			Name:      "evaluations_total",
			Help:      "Position evaluations by outcome",
		}, []string{"outcome"}),
		priceFetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hedgebot",
			Subsystem: "engine",
			Name:      "price_fetch_failures_total",
			Help:      "Spot price fetches that returned no price",
		}, []string{"asset"}),
		hedgeOrders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hedgebot",
			Subsystem: "engine",
			Name:      "hedge_orders_total",
			Help:      "Auto-hedge attempts by result",
		}, []string{"result"}), // placed, rejected, no_product
		notifyFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hedgebot",
			Subsystem: "engine",
			Name:      "notify_failures_total",
			Help:      "Notifications that could not be delivered",
		}),
		monitored: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "hedgebot",
			Subsystem: "engine",
			Name:      "monitored_positions",
			Help:      "Positions evaluated in the last pass",
		}),
	}
}

func (m *Metrics) observeTick(d time.Duration, evaluated int) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
	m.monitored.Set(float64(evaluated))
}

func (m *Metrics) observeOutcome(o Outcome) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) priceFetchFailed(asset string) {
	if m == nil {
		return
	}
	m.priceFetchFailures.WithLabelValues(asset).Inc()
}

func (m *Metrics) hedgeOrder(result string) {
	if m == nil {
		return
	}
	m.hedgeOrders.WithLabelValues(result).Inc()
}

func (m *Metrics) notifyFailed() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}
