package core

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/encodeous/routesim/perf"
	"github.com/encodeous/routesim/state"
)

const (
	ProtocolDV = "dv"
	ProtocolLS = "ls"
)

// routerBase is shared by both router actors. It carries everything a router
// reports to, none of it is routing state.
type routerBase struct {
	id       state.NodeId
	protocol string
	log      *slog.Logger
	trace    *Trace
	registry *perf.Registry
}

func newRouterBase(id state.NodeId, protocol string, opts Options) routerBase {
	return routerBase{
		id:       id,
		protocol: protocol,
		log:      opts.logger().With("router", id, "protocol", protocol),
		trace:    opts.Trace,
		registry: opts.Registry,
	}
}

func (b *routerBase) Id() state.NodeId {
	return b.id
}

func (b *routerBase) Log(event RouterEvent, desc string, args ...any) {
	b.log.Debug(fmt.Sprintf("%s %s", event.String(), desc), args...)
	if b.trace != nil {
		b.trace.Publish(TraceEvent{
			Time:     time.Now(),
			Protocol: b.protocol,
			Router:   b.id,
			Event:    event,
			Desc:     desc,
			Args:     args,
		})
	}
}

func (b *routerBase) record(before, after state.RouterStats) {
	delta := after.Minus(before)
	perf.RouteChangesPerSecond.Add(float64(delta.RouteChanges))
	if b.registry == nil {
		return
	}
	delta.Each(func(name string, v uint64) {
		b.registry.RecordRouterEvents(b.protocol, string(b.id), name, v)
	})
}

// recorded wraps fun so that the stats it changes are exported.
func recorded[S any](b *routerBase, stats func(S) state.RouterStats, fun func(S) error) func(S) error {
	return func(s S) error {
		before := stats(s)
		err := fun(s)
		b.record(before, stats(s))
		return err
	}
}

// call runs fun on the actor and waits for its result.
func call[S, T any](b *routerBase, env *state.Env[S], stats func(S) state.RouterStats, fun func(S) (T, error)) (T, error) {
	return state.DispatchWait(env, func(s S) (T, error) {
		before := stats(s)
		res, err := fun(s)
		b.record(before, stats(s))
		return res, err
	})
}
