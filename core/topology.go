package core

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/encodeous/routesim/state"
)

// Topology is the source of truth for which links exist, their cost and
// whether they are up. Each undirected link is kept as two directed entries.
// Accessors return copies, nothing handed out aliases the topology.
type Topology struct {
	routers map[state.NodeId]struct{}
	links   map[state.Pair[state.NodeId, state.NodeId]]state.Link
}

func NewTopology() *Topology {
	return &Topology{
		routers: make(map[state.NodeId]struct{}),
		links:   make(map[state.Pair[state.NodeId, state.NodeId]]state.Link),
	}
}

// TopologyFromConfig builds the topology from explicit links and the expanded group graph.
func TopologyFromConfig(cfg *state.TopologyCfg) (*Topology, error) {
	t := NewTopology()
	for _, r := range cfg.Routers {
		t.AddRouter(r)
	}
	edges, err := cfg.Edges()
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		if !t.HasRouter(e.From) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRouter, e.From)
		}
		if !t.HasRouter(e.To) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRouter, e.To)
		}
		if err := t.AddLink(e.From, e.To, e.Cost); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Topology) AddRouter(id state.NodeId) {
	t.routers[id] = struct{}{}
}

func (t *Topology) HasRouter(id state.NodeId) bool {
	_, ok := t.routers[id]
	return ok
}

// AddLink adds an up link between a and b, registering both routers.
func (t *Topology) AddLink(a, b state.NodeId, cost int) error {
	if cost <= 0 {
		return fmt.Errorf("%w: %s - %s has cost %d", ErrInvalidCost, a, b, cost)
	}
	if a == b {
		return fmt.Errorf("%w: %s", ErrSelfNeighbour, a)
	}
	if _, ok := t.links[state.Pair[state.NodeId, state.NodeId]{V1: a, V2: b}]; ok {
		return fmt.Errorf("%w: %s - %s", ErrDuplicateLink, a, b)
	}
	t.AddRouter(a)
	t.AddRouter(b)
	t.links[state.Pair[state.NodeId, state.NodeId]{V1: a, V2: b}] = state.Link{
		Source: a, Destination: b, Cost: uint64(cost), Status: state.LinkUp,
	}
	t.links[state.Pair[state.NodeId, state.NodeId]{V1: b, V2: a}] = state.Link{
		Source: b, Destination: a, Cost: uint64(cost), Status: state.LinkUp,
	}
	return nil
}

func (t *Topology) SetLinkStatus(a, b state.NodeId, status state.LinkStatus) error {
	fwd := state.Pair[state.NodeId, state.NodeId]{V1: a, V2: b}
	rev := state.Pair[state.NodeId, state.NodeId]{V1: b, V2: a}
	l1, ok1 := t.links[fwd]
	l2, ok2 := t.links[rev]
	if !ok1 || !ok2 {
		return fmt.Errorf("%w: %s - %s", ErrUnknownLink, a, b)
	}
	l1.Status = status
	l2.Status = status
	t.links[fwd] = l1
	t.links[rev] = l2
	return nil
}

// Link returns the directed entry a -> b.
func (t *Topology) Link(a, b state.NodeId) (state.Link, bool) {
	l, ok := t.links[state.Pair[state.NodeId, state.NodeId]{V1: a, V2: b}]
	return l, ok
}

// Neighbours returns every link leaving id, regardless of status, sorted by destination.
func (t *Topology) Neighbours(id state.NodeId) []state.Link {
	out := make([]state.Link, 0)
	for k, l := range t.links {
		if k.V1 == id {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b state.Link) int {
		return cmp.Compare(a.Destination, b.Destination)
	})
	return out
}

// Links returns one entry per undirected link with Source < Destination, sorted.
func (t *Topology) Links() []state.Link {
	out := make([]state.Link, 0, len(t.links)/2)
	for k, l := range t.links {
		if k.V1 < k.V2 {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b state.Link) int {
		if c := cmp.Compare(a.Source, b.Source); c != 0 {
			return c
		}
		return cmp.Compare(a.Destination, b.Destination)
	})
	return out
}

func (t *Topology) Routers() []state.NodeId {
	return slices.Sorted(maps.Keys(t.routers))
}
