package core

// Link-state flooding and shortest path first, loosely following the
// flooding procedure of OSPF (RFC 2328, section 13).

import (
	"fmt"
	"maps"
	"math"
	"math/bits"
	"slices"

	"github.com/encodeous/routesim/state"
)

func validateNeighbour(s *state.LSState, id state.NodeId, cost int) error {
	if cost <= 0 {
		return fmt.Errorf("%w: %s -> %s has cost %d", ErrInvalidCost, s.Id, id, cost)
	}
	if id == s.Id {
		return fmt.Errorf("%w: %s", ErrSelfNeighbour, id)
	}
	return nil
}

// LSAddNeighbour adds or updates an up adjacency and originates a new LSP.
func LSAddNeighbour(s *state.LSState, r Flooder, id state.NodeId, cost int) error {
	if err := validateNeighbour(s, id, cost); err != nil {
		return err
	}
	s.Adjacency[id] = state.Adjacency{Cost: uint64(cost), Status: state.LinkUp}
	r.Log(NeighbourAdded, "neighbour added", "neigh", id, "cost", cost)
	return GenerateLSP(s, r)
}

func LSRemoveNeighbour(s *state.LSState, r Flooder, id state.NodeId) error {
	if _, ok := s.Adjacency[id]; !ok {
		return nil
	}
	delete(s.Adjacency, id)
	r.Log(NeighbourRemoved, "neighbour removed", "neigh", id)
	return GenerateLSP(s, r)
}

// LSSetLinkStatus marks the link to id up or down. A down link stays in the
// adjacency and is advertised with status down.
func LSSetLinkStatus(s *state.LSState, r Flooder, id state.NodeId, status state.LinkStatus) error {
	adj, ok := s.Adjacency[id]
	if !ok {
		return fmt.Errorf("%w: %s - %s", ErrUnknownLink, s.Id, id)
	}
	if adj.Status == status {
		return nil
	}
	adj.Status = status
	s.Adjacency[id] = adj
	r.Log(LinkStatusChanged, "link status changed", "neigh", id, "status", status)
	return GenerateLSP(s, r)
}

// GenerateLSP originates a new LSP from the current adjacency, installs it,
// floods it to every up neighbour and recomputes routes.
func GenerateLSP(s *state.LSState, r Flooder) error {
	if s.Seqno == math.MaxUint64 {
		return fmt.Errorf("%w: %s", ErrSeqnoExhausted, s.Id)
	}
	s.Seqno++
	lsp := state.LSPFromAdjacency(s.Id, s.Seqno, s.Adjacency)
	s.Db.Install(lsp, true)
	r.Log(LSPOriginated, "lsp originated", "lsp", lsp)
	flood(s, r, lsp, "")
	ComputeShortestPaths(s, r)
	return nil
}

func flood(s *state.LSState, r Flooder, lsp state.LSP, except state.NodeId) {
	for _, neigh := range s.UpNeighbours() {
		if neigh == except {
			continue
		}
		out := lsp.Clone()
		out.Age++
		r.SendLSP(neigh, out)
		s.Stats.LSPsSent++
	}
}

// HandleLSP installs lsp if it is newer than what the database holds for its
// origin, then floods it onwards and recomputes. It returns whether the
// database changed. Stale and duplicate LSPs are dropped.
func HandleLSP(s *state.LSState, r Flooder, lsp state.LSP, from state.NodeId) (bool, error) {
	if !s.IsUpNeighbour(from) {
		s.Stats.Dropped++
		r.Log(UpdateDropped, "lsp from non-neighbour dropped", "from", from, "lsp", lsp)
		return false, nil
	}
	s.Stats.LSPsReceived++

	if lsp.Origin == s.Id {
		// newer copy of our own LSP, e.g. from before a restart
		if lsp.Seqno <= s.Seqno {
			return false, nil
		}
		r.Log(SelfLSPRefreshed, "newer self-originated lsp seen, re-originating", "lsp", lsp, "seqno", s.Seqno)
		s.Seqno = lsp.Seqno
		return true, GenerateLSP(s, r)
	}

	if cur, ok := s.Db.Seqno(lsp.Origin); ok && lsp.Seqno <= cur {
		r.Log(StaleLSPDropped, "stale lsp dropped", "from", from, "lsp", lsp, "stored", cur)
		return false, nil
	}
	s.Db.Install(lsp, false)
	r.Log(LSPInstalled, "lsp installed", "from", from, "lsp", lsp)
	flood(s, r, lsp, from)
	ComputeShortestPaths(s, r)
	return true, nil
}

// RefreshLSP re-originates the router's LSP with a new seqno so its copies in
// other databases are reset before they reach max age. Nothing is sent
// before the first LSP has been originated.
func RefreshLSP(s *state.LSState, r Flooder) error {
	if s.Seqno == 0 {
		return nil
	}
	r.Log(LSPRefreshed, "refreshing own lsp", "seqno", s.Seqno)
	return GenerateLSP(s, r)
}

// AgeLSPs removes LSPs that outlived their max age and recomputes routes if any did.
func AgeLSPs(s *state.LSState, r Flooder) {
	expired := s.Db.Expire()
	if len(expired) == 0 {
		return
	}
	r.Log(LSPExpired, "lsps aged out", "origins", expired)
	ComputeShortestPaths(s, r)
}

type spfEdge struct {
	to   state.NodeId
	cost uint64
}

// ComputeShortestPaths runs Dijkstra from self over every up link in the
// database and replaces the routing table. Among equal cost paths, the one
// whose first hop has the lowest id wins.
func ComputeShortestPaths(s *state.LSState, r Flooder) {
	graph := make(map[state.NodeId][]spfEdge)
	for origin, lsp := range s.Db.Snapshot() {
		for _, link := range lsp.Links {
			if link.Status != state.LinkUp {
				continue
			}
			graph[origin] = append(graph[origin], spfEdge{to: link.Destination, cost: link.Cost})
		}
	}

	dist := map[state.NodeId]uint64{s.Id: 0}
	first := map[state.NodeId]state.NodeId{s.Id: s.Id}
	prev := make(map[state.NodeId]state.NodeId)
	done := make(map[state.NodeId]bool)

	q := newSPFQueue[uint64]()
	q.Offer(s.Id, 0)
	for q.Len() > 0 {
		u, d := q.Settle()
		done[u] = true
		for _, e := range graph[u] {
			v := e.to
			if done[v] {
				continue
			}
			cand, carry := bits.Add64(d, e.cost, 0)
			if carry != 0 {
				continue
			}
			fh := first[u]
			if u == s.Id {
				fh = v
			}
			if old, seen := dist[v]; seen && (cand > old || cand == old && fh >= first[v]) {
				continue
			}
			dist[v] = cand
			first[v] = fh
			prev[v] = u
			q.Offer(v, cand)
		}
	}

	routes := make(map[state.NodeId]state.RoutingEntry, len(dist))
	for dst, cost := range dist {
		nh := dst
		for nh != s.Id && prev[nh] != s.Id {
			nh = prev[nh]
		}
		routes[dst] = state.RoutingEntry{Destination: dst, NextHop: nh, Cost: cost}
	}

	s.Stats.SPFRuns++
	if !maps.Equal(routes, s.Routes) {
		s.Stats.RouteChanges++
	}
	s.Routes = routes
	r.Log(ShortestPathsComputed, "shortest paths computed", "reachable", len(routes), "origins", len(graph))
}

// LSRoutingTable returns the routing table sorted by destination.
func LSRoutingTable(s *state.LSState) []state.RoutingEntry {
	out := make([]state.RoutingEntry, 0, len(s.Routes))
	for _, dst := range slices.Sorted(maps.Keys(s.Routes)) {
		out = append(out, s.Routes[dst])
	}
	return out
}
