package core

// Distributed Bellman-Ford with split horizon and poison reverse, in the
// style of RIP (RFC 2453, section 3.4.3).

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/encodeous/routesim/state"
)

// clampMetric applies the optional metric ceiling, anything above it is unreachable.
func clampMetric(s *state.DVState, m state.Metric) state.Metric {
	if s.MetricCeiling == 0 {
		return m
	}
	if v, ok := m.Value(); ok && v > s.MetricCeiling {
		return state.Inf
	}
	return m
}

// setEntry installs (dst, dist, nh). It returns false if the entry is unchanged.
func setEntry(s *state.DVState, r Router, dst state.NodeId, dist state.Metric, nh state.NodeId) bool {
	if dist.IsInf() {
		nh = ""
	}
	old, ok := s.Table[dst]
	if ok && old.Distance == dist && old.NextHop == nh {
		return false
	}
	s.Table[dst] = state.DistanceEntry{
		Destination: dst,
		Distance:    dist,
		NextHop:     nh,
		LastUpdated: time.Now(),
	}
	s.Stats.RouteChanges++
	switch {
	case !ok:
		r.Log(RouteAdded, "route added", "dst", dst, "nh", nh, "metric", dist)
	case dist.IsInf():
		r.Log(RouteRetracted, "route retracted", "dst", dst, "old", old)
	case dist.Less(old.Distance):
		r.Log(RouteImproved, "route improved", "dst", dst, "nh", nh, "metric", dist, "old", old)
	default:
		r.Log(RouteChanged, "route changed", "dst", dst, "nh", nh, "metric", dist, "old", old)
	}
	return true
}

// DVAddNeighbour registers or updates a direct link and seeds the route to the neighbour.
func DVAddNeighbour(s *state.DVState, r Router, id state.NodeId, cost int) error {
	if cost <= 0 {
		return fmt.Errorf("%w: %s -> %s has cost %d", ErrInvalidCost, s.Id, id, cost)
	}
	if id == s.Id {
		return fmt.Errorf("%w: %s", ErrSelfNeighbour, id)
	}
	s.Neighbours[id] = uint64(cost)
	r.Log(NeighbourAdded, "neighbour added", "neigh", id, "cost", cost)

	cand := clampMetric(s, state.Finite(uint64(cost)))
	cur, ok := s.Table[id]
	if !ok || cand.Less(cur.Distance) || cur.NextHop == id {
		setEntry(s, r, id, cand, id)
	}
	return nil
}

// DVRemoveNeighbour drops the adjacency. Every route through id becomes
// unreachable until an alternative is learned in a later round.
func DVRemoveNeighbour(s *state.DVState, r Router, id state.NodeId) bool {
	if _, ok := s.Neighbours[id]; !ok {
		return false
	}
	delete(s.Neighbours, id)
	r.Log(NeighbourRemoved, "neighbour removed", "neigh", id)

	changed := false
	for _, dst := range slices.Sorted(maps.Keys(s.Table)) {
		if s.Table[dst].NextHop == id && dst != s.Id {
			changed = setEntry(s, r, dst, state.Inf, "") || changed
		}
	}
	return changed
}

// HandleDistanceVector relaxes the table against a vector advertised by sender.
// It returns whether any entry changed.
func HandleDistanceVector(s *state.DVState, r Router, sender state.NodeId, vec state.DistanceVector) bool {
	cost, ok := s.Neighbours[sender]
	if !ok {
		s.Stats.Dropped++
		r.Log(UpdateDropped, "distance vector from non-neighbour dropped", "from", sender)
		return false
	}
	s.Stats.UpdatesReceived++
	link := state.Finite(cost)

	changed := false
	for _, dst := range slices.Sorted(maps.Keys(vec)) {
		if dst == s.Id {
			continue
		}
		cand := clampMetric(s, link.Add(vec[dst]))
		cur, ok := s.Table[dst]
		switch {
		case !ok:
			// a retraction for a route we never had
			if cand.IsInf() {
				continue
			}
		case cand.Less(cur.Distance):
		case cur.NextHop == sender && cand != cur.Distance:
		default:
			continue
		}
		changed = setEntry(s, r, dst, cand, sender) || changed
	}
	return changed
}

// DistanceVectorOf returns the full advertisement, unreachable entries included.
func DistanceVectorOf(s *state.DVState) state.DistanceVector {
	vec := make(state.DistanceVector, len(s.Table))
	for dst, e := range s.Table {
		vec[dst] = e.Distance
	}
	return vec
}

// DistanceVectorFor returns the advertisement for target with poison reverse:
// every route whose next hop is target is advertised as unreachable. It does
// not count as a sent update, the caller does that when it actually sends.
func DistanceVectorFor(s *state.DVState, target state.NodeId) state.DistanceVector {
	vec := make(state.DistanceVector, len(s.Table))
	for dst, e := range s.Table {
		if e.NextHop == target && dst != s.Id {
			vec[dst] = state.Inf
		} else {
			vec[dst] = e.Distance
		}
	}
	return vec
}

// DVRoutingTable returns the reachable destinations, self included, sorted.
func DVRoutingTable(s *state.DVState) []state.RoutingEntry {
	out := make([]state.RoutingEntry, 0, len(s.Table))
	for _, dst := range slices.Sorted(maps.Keys(s.Table)) {
		e := s.Table[dst]
		v, ok := e.Distance.Value()
		if !ok {
			continue
		}
		out = append(out, state.RoutingEntry{Destination: dst, NextHop: e.NextHop, Cost: v})
	}
	return out
}
