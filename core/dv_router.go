package core

import (
	"context"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/encodeous/routesim/perf"
	"github.com/encodeous/routesim/state"
)

// DVRouter is a distance-vector router running on its own goroutine. Its
// distance table is only ever touched from that goroutine, everything else
// goes through the mailbox.
type DVRouter struct {
	routerBase
	env *state.Env[*state.DVState]
	st  *state.DVState
	net *Network[state.DistanceVector]
	// changes counts received vectors that changed the table, see takeChanges
	changes atomic.Uint64
}

func dvStats(s *state.DVState) state.RouterStats {
	return s.Stats
}

func NewDVRouter(ctx context.Context, id state.NodeId, opts Options, net *Network[state.DistanceVector]) *DVRouter {
	r := &DVRouter{
		routerBase: newRouterBase(id, ProtocolDV, opts),
		net:        net,
	}
	r.env = state.NewEnv[*state.DVState](ctx, r.log)
	r.st = state.NewDVState(id)
	r.st.MetricCeiling = opts.MetricCeiling
	net.Attach(id, r.receive)
	return r
}

// seed adds neighbours before the router starts running.
func (r *DVRouter) seed(links []state.Link) error {
	for _, l := range links {
		if l.Status != state.LinkUp {
			continue
		}
		if err := DVAddNeighbour(r.st, r, l.Destination, int(l.Cost)); err != nil {
			return err
		}
	}
	return nil
}

// Run processes the mailbox until the router's context is cancelled.
func (r *DVRouter) Run() error {
	return r.env.Run(r.st)
}

func (r *DVRouter) receive(from state.NodeId, vec state.DistanceVector, done func()) {
	perf.MessagesPerSecond.Add(1)
	r.env.Dispatch(recorded(&r.routerBase, dvStats, func(s *state.DVState) error {
		defer done()
		if HandleDistanceVector(s, r, from, vec) {
			r.changes.Add(1)
		}
		return nil
	}))
}

// takeChanges returns the number of table-changing vectors since the last call.
func (r *DVRouter) takeChanges() uint64 {
	return r.changes.Swap(0)
}

func (r *DVRouter) AddNeighbor(id state.NodeId, cost int) error {
	_, err := call(&r.routerBase, r.env, dvStats, func(s *state.DVState) (struct{}, error) {
		return struct{}{}, DVAddNeighbour(s, r, id, cost)
	})
	return err
}

// RemoveNeighbor drops the adjacency to id. It reports whether any route was lost.
func (r *DVRouter) RemoveNeighbor(id state.NodeId) (bool, error) {
	return call(&r.routerBase, r.env, dvStats, func(s *state.DVState) (bool, error) {
		return DVRemoveNeighbour(s, r, id), nil
	})
}

// ReceiveDistanceVector processes vec synchronously, bypassing the network.
func (r *DVRouter) ReceiveDistanceVector(sender state.NodeId, vec state.DistanceVector) (bool, error) {
	vec = vec.Clone()
	return call(&r.routerBase, r.env, dvStats, func(s *state.DVState) (bool, error) {
		changed := HandleDistanceVector(s, r, sender, vec)
		if changed {
			r.changes.Add(1)
		}
		return changed, nil
	})
}

func (r *DVRouter) GetDistanceVector() (state.DistanceVector, error) {
	return call(&r.routerBase, r.env, dvStats, func(s *state.DVState) (state.DistanceVector, error) {
		return DistanceVectorOf(s), nil
	})
}

// SendDistanceVector returns the vector to advertise to target, with poison reverse applied.
func (r *DVRouter) SendDistanceVector(target state.NodeId) (state.DistanceVector, error) {
	return call(&r.routerBase, r.env, dvStats, func(s *state.DVState) (state.DistanceVector, error) {
		return DistanceVectorFor(s, target), nil
	})
}

// advertisements snapshots the vector for every current neighbour at once.
// Each one is counted as sent, the caller must deliver all of them.
func (r *DVRouter) advertisements() (map[state.NodeId]state.DistanceVector, error) {
	return call(&r.routerBase, r.env, dvStats, func(s *state.DVState) (map[state.NodeId]state.DistanceVector, error) {
		out := make(map[state.NodeId]state.DistanceVector, len(s.Neighbours))
		for _, neigh := range slices.Sorted(maps.Keys(s.Neighbours)) {
			out[neigh] = DistanceVectorFor(s, neigh)
			s.Stats.UpdatesSent++
		}
		return out, nil
	})
}

func (r *DVRouter) DistanceTable() (map[state.NodeId]state.DistanceEntry, error) {
	return call(&r.routerBase, r.env, dvStats, func(s *state.DVState) (map[state.NodeId]state.DistanceEntry, error) {
		return maps.Clone(s.Table), nil
	})
}

func (r *DVRouter) RoutingTable() ([]state.RoutingEntry, error) {
	return call(&r.routerBase, r.env, dvStats, func(s *state.DVState) ([]state.RoutingEntry, error) {
		return DVRoutingTable(s), nil
	})
}

func (r *DVRouter) Stats() (state.RouterStats, error) {
	return call(&r.routerBase, r.env, dvStats, func(s *state.DVState) (state.RouterStats, error) {
		return s.Stats, nil
	})
}
