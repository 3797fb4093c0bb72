// CLAUDE:SUMMARY Prometheus collectors for ticks, items, subscribers, deliveries and browser recycles.
// Package metrics exposes the polling loop and delivery counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Ticks         prometheus.Counter
	ExtractErrors prometheus.Counter
	TickDuration  prometheus.Histogram
	ItemsVisible  prometheus.Gauge
	NewItems      prometheus.Counter
	SeenKeys      prometheus.Gauge
	Subscribers   prometheus.Gauge
	Deliveries    *prometheus.CounterVec // result: ok | error
	Recycles      prometheus.Counter
}

// New registers the collectors on a fresh registry, plus the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "authwatch_ticks_total",
			Help: "Polling iterations run.",
		}),
		ExtractErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "authwatch_extract_errors_total",
			Help: "Iterations whose list extraction failed.",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "authwatch_tick_duration_seconds",
			Help:    "Time spent in one polling iteration, sleep excluded.",
			Buckets: prometheus.DefBuckets,
		}),
		ItemsVisible: f.NewGauge(prometheus.GaugeOpts{
			Name: "authwatch_items_visible",
			Help: "Items extracted on the last iteration.",
		}),
		NewItems: f.NewCounter(prometheus.CounterOpts{
			Name: "authwatch_new_items_total",
			Help: "Items reported as new.",
		}),
		SeenKeys: f.NewGauge(prometheus.GaugeOpts{
			Name: "authwatch_seen_keys",
			Help: "Distinct identity keys seen by this process.",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "authwatch_subscribers",
			Help: "Active notification subscribers.",
		}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authwatch_deliveries_total",
			Help: "Notification delivery attempts by result.",
		}, []string{"result"}),
		Recycles: f.NewCounter(prometheus.CounterOpts{
			Name: "authwatch_browser_recycles_total",
			Help: "Browser restarts followed by session replay.",
		}),
	}
}

// ObserveTick records one iteration.
func (m *Metrics) ObserveTick(d time.Duration, visible, fresh, seen, subscribers int, extractErr error) {
	m.Ticks.Inc()
	m.TickDuration.Observe(d.Seconds())
	if extractErr != nil {
		m.ExtractErrors.Inc()
		return
	}
	m.ItemsVisible.Set(float64(visible))
	m.NewItems.Add(float64(fresh))
	m.SeenKeys.Set(float64(seen))
	m.Subscribers.Set(float64(subscribers))
}

// ObserveDelivery records one delivery attempt.
func (m *Metrics) ObserveDelivery(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Deliveries.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
