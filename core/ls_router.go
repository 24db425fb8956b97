package core

import (
	"context"
	"time"

	"github.com/encodeous/routesim/perf"
	"github.com/encodeous/routesim/state"
)

// LSRouter is a link-state router running on its own goroutine. It owns its
// link-state database, LSPs reach it only through the network.
type LSRouter struct {
	routerBase
	env    *state.Env[*state.LSState]
	st     *state.LSState
	net    *Network[state.LSP]
	maxAge time.Duration
}

func lsStats(s *state.LSState) state.RouterStats {
	return s.Stats
}

func NewLSRouter(ctx context.Context, id state.NodeId, opts Options, net *Network[state.LSP]) *LSRouter {
	r := &LSRouter{
		routerBase: newRouterBase(id, ProtocolLS, opts),
		net:        net,
		maxAge:     opts.LSPMaxAge,
	}
	r.env = state.NewEnv[*state.LSState](ctx, r.log)
	r.st = state.NewLSState(id, opts.LSPMaxAge)
	net.Attach(id, r.receive)
	return r
}

// seed sets the adjacency before the router starts running. No LSP is
// originated until GenerateLSP is called.
func (r *LSRouter) seed(links []state.Link) error {
	for _, l := range links {
		if err := validateNeighbour(r.st, l.Destination, int(l.Cost)); err != nil {
			return err
		}
		r.st.Adjacency[l.Destination] = state.Adjacency{Cost: l.Cost, Status: l.Status}
	}
	return nil
}

// Run processes the mailbox until the router's context is cancelled. When
// LSPs age, the database is swept four times per max age and the router
// re-originates its own LSP twice per max age, so that live origins never
// age out of their neighbours' databases.
func (r *LSRouter) Run() error {
	if r.maxAge > 0 {
		r.env.RepeatTask(recorded(&r.routerBase, lsStats, func(s *state.LSState) error {
			AgeLSPs(s, r)
			return nil
		}), max(r.maxAge/4, time.Millisecond))
		r.env.RepeatTask(recorded(&r.routerBase, lsStats, func(s *state.LSState) error {
			return RefreshLSP(s, r)
		}), refreshInterval(r.maxAge))
	}
	return r.env.Run(r.st)
}

// refreshInterval is the OSPF LSRefreshTime analogue: half the max age.
func refreshInterval(maxAge time.Duration) time.Duration {
	return max(maxAge/2, time.Millisecond)
}

// SendLSP hands lsp to the network, it is called from the router's goroutine.
func (r *LSRouter) SendLSP(neigh state.NodeId, lsp state.LSP) {
	if !r.net.Send(r.id, neigh, lsp) {
		r.Log(InconsistentState, "neighbour is not attached to the network", "neigh", neigh)
	}
}

func (r *LSRouter) receive(from state.NodeId, lsp state.LSP, done func()) {
	perf.MessagesPerSecond.Add(1)
	r.env.Dispatch(recorded(&r.routerBase, lsStats, func(s *state.LSState) error {
		defer done()
		_, err := HandleLSP(s, r, lsp, from)
		return err
	}))
}

func (r *LSRouter) AddNeighbor(id state.NodeId, cost int) error {
	_, err := call(&r.routerBase, r.env, lsStats, func(s *state.LSState) (struct{}, error) {
		return struct{}{}, LSAddNeighbour(s, r, id, cost)
	})
	return err
}

func (r *LSRouter) RemoveNeighbor(id state.NodeId) error {
	_, err := call(&r.routerBase, r.env, lsStats, func(s *state.LSState) (struct{}, error) {
		return struct{}{}, LSRemoveNeighbour(s, r, id)
	})
	return err
}

func (r *LSRouter) SetLinkStatus(id state.NodeId, status state.LinkStatus) error {
	_, err := call(&r.routerBase, r.env, lsStats, func(s *state.LSState) (struct{}, error) {
		return struct{}{}, LSSetLinkStatus(s, r, id, status)
	})
	return err
}

func (r *LSRouter) GenerateLSP() error {
	_, err := call(&r.routerBase, r.env, lsStats, func(s *state.LSState) (struct{}, error) {
		return struct{}{}, GenerateLSP(s, r)
	})
	return err
}

// ReceiveLSP processes lsp synchronously, bypassing the network for the
// incoming LSP. Floods still go out over the network.
func (r *LSRouter) ReceiveLSP(lsp state.LSP, from state.NodeId) (bool, error) {
	lsp = lsp.Clone()
	return call(&r.routerBase, r.env, lsStats, func(s *state.LSState) (bool, error) {
		return HandleLSP(s, r, lsp, from)
	})
}

// Database returns a copy of every live LSP, keyed by origin.
func (r *LSRouter) Database() (map[state.NodeId]state.LSP, error) {
	return call(&r.routerBase, r.env, lsStats, func(s *state.LSState) (map[state.NodeId]state.LSP, error) {
		return s.Db.Snapshot(), nil
	})
}

func (r *LSRouter) Seqno() (uint64, error) {
	return call(&r.routerBase, r.env, lsStats, func(s *state.LSState) (uint64, error) {
		return s.Seqno, nil
	})
}

func (r *LSRouter) RoutingTable() ([]state.RoutingEntry, error) {
	return call(&r.routerBase, r.env, lsStats, func(s *state.LSState) ([]state.RoutingEntry, error) {
		return LSRoutingTable(s), nil
	})
}

func (r *LSRouter) Stats() (state.RouterStats, error) {
	return call(&r.routerBase, r.env, lsStats, func(s *state.LSState) (state.RouterStats, error) {
		return s.Stats, nil
	})
}
