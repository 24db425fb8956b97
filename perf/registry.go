package perf

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the prometheus metrics of one simulation
type Registry struct {
	// RouterEventsTotal counts protocol events per router, labelled by
	// protocol (dv, ls), router and event (updates_sent, lsps_received, ...)
	RouterEventsTotal *prometheus.CounterVec

	ConvergenceTotal    *prometheus.CounterVec
	ConvergenceDuration *prometheus.HistogramVec
	ConvergenceRounds   prometheus.Histogram
	LinkEventsTotal     *prometheus.CounterVec
	Routers             prometheus.Gauge

	registry *prometheus.Registry
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
	}

	r.RouterEventsTotal = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "routesim_router_events_total",
			Help: "Protocol events observed by each router",
		},
		[]string{"protocol", "router", "event"},
	)

	r.ConvergenceTotal = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "routesim_convergence_total",
			Help: "Convergence attempts by protocol and result",
		},
		[]string{"protocol", "result"}, // converged, not_converged, error
	)

	r.ConvergenceDuration = promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routesim_convergence_duration_seconds",
			Help:    "Time taken to converge",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"protocol"},
	)

	r.ConvergenceRounds = promauto.With(reg).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "routesim_dv_convergence_rounds",
			Help:    "Distance-vector exchange rounds needed to converge",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	r.LinkEventsTotal = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "routesim_link_events_total",
			Help: "Link status changes applied to the topology",
		},
		[]string{"status"},
	)

	r.Routers = promauto.With(reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "routesim_routers",
			Help: "Number of routers in the simulation",
		},
	)

	return r
}

// RecordRouterEvents adds n occurrences of event on router
func (r *Registry) RecordRouterEvents(protocol, router, event string, n uint64) {
	if n == 0 {
		return
	}
	r.RouterEventsTotal.WithLabelValues(protocol, router, event).Add(float64(n))
}

// RecordConvergence records one convergence attempt
func (r *Registry) RecordConvergence(protocol, result string, duration time.Duration) {
	r.ConvergenceTotal.WithLabelValues(protocol, result).Inc()
	r.ConvergenceDuration.WithLabelValues(protocol).Observe(duration.Seconds())
}

func (r *Registry) RecordLinkEvent(status string) {
	r.LinkEventsTotal.WithLabelValues(status).Inc()
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
