package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency       = metric.NewHistogram("1m1s")
	RoundLatency          = metric.NewHistogram("1m1s")
	FloodDuration         = metric.NewHistogram("1m1s")
	MailboxBacklog        = metric.NewHistogram("10s1s")
	MessagesPerSecond     = metric.NewCounter("10s1s")
	RouteChangesPerSecond = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("routesim:DispatchLatency (µs)", DispatchLatency)
	expvar.Publish("routesim:RoundLatency (µs)", RoundLatency)
	expvar.Publish("routesim:FloodDuration (µs)", FloodDuration)
	expvar.Publish("routesim:MailboxBacklog", MailboxBacklog)
	expvar.Publish("routesim:Messages/s", MessagesPerSecond)
	expvar.Publish("routesim:RouteChanges/s", RouteChangesPerSecond)
}
