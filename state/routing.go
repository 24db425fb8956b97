package state

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

type NodeId string

type LinkStatus uint8

const (
	LinkUp LinkStatus = iota
	LinkDown
)

func (s LinkStatus) String() string {
	if s == LinkUp {
		return "up"
	}
	return "down"
}

func (s LinkStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LinkStatus) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "up", "":
		*s = LinkUp
	case "down":
		*s = LinkDown
	default:
		return fmt.Errorf("invalid link status %q", string(text))
	}
	return nil
}

// Link is one direction of a bidirectional link, as seen by Source.
type Link struct {
	Source      NodeId
	Destination NodeId
	Cost        uint64
	Status      LinkStatus
}

func (l Link) String() string {
	return fmt.Sprintf("%s -> %s (cost: %d, %s)", l.Source, l.Destination, l.Cost, l.Status)
}

// Adjacency is a router's view of a directly attached neighbour.
type Adjacency struct {
	Cost   uint64
	Status LinkStatus
}

type DistanceEntry struct {
	Destination NodeId
	Distance    Metric
	NextHop     NodeId // empty iff Distance is Inf
	LastUpdated time.Time
}

func (e DistanceEntry) String() string {
	if e.Distance.IsInf() {
		return fmt.Sprintf("%s unreachable", e.Destination)
	}
	return fmt.Sprintf("%s via %s (metric: %s)", e.Destination, e.NextHop, e.Distance)
}

// DistanceVector is an advertisement: destination to advertised distance.
type DistanceVector map[NodeId]Metric

func (v DistanceVector) Clone() DistanceVector {
	return maps.Clone(v)
}

func (v DistanceVector) String() string {
	out := make([]string, 0, len(v))
	for _, dst := range slices.Sorted(maps.Keys(v)) {
		out = append(out, fmt.Sprintf("%s:%s", dst, v[dst]))
	}
	return "[" + strings.Join(out, " ") + "]"
}

// LSP is a versioned snapshot of the origin's adjacencies. Installed LSPs are
// never mutated, they are replaced by a newer one.
type LSP struct {
	Origin NodeId
	Seqno  uint64
	// Age counts the hops the LSP has been flooded across.
	Age   uint32
	Links []Link
}

func (l LSP) Clone() LSP {
	l.Links = slices.Clone(l.Links)
	return l
}

// Adjacency reconstructs the origin's adjacency set.
func (l LSP) Adjacency() map[NodeId]Adjacency {
	adj := make(map[NodeId]Adjacency, len(l.Links))
	for _, link := range l.Links {
		adj[link.Destination] = Adjacency{Cost: link.Cost, Status: link.Status}
	}
	return adj
}

func (l LSP) String() string {
	return fmt.Sprintf("(origin: %s, seqno: %d, age: %d, links: %d)", l.Origin, l.Seqno, l.Age, len(l.Links))
}

// LSPFromAdjacency builds an LSP whose links are sorted by destination.
func LSPFromAdjacency(origin NodeId, seqno uint64, adj map[NodeId]Adjacency) LSP {
	links := make([]Link, 0, len(adj))
	for _, dst := range slices.Sorted(maps.Keys(adj)) {
		a := adj[dst]
		links = append(links, Link{
			Source:      origin,
			Destination: dst,
			Cost:        a.Cost,
			Status:      a.Status,
		})
	}
	return LSP{
		Origin: origin,
		Seqno:  seqno,
		Links:  links,
	}
}

type RoutingEntry struct {
	Destination NodeId
	NextHop     NodeId
	Cost        uint64
}

func (e RoutingEntry) String() string {
	return fmt.Sprintf("%s via %s (cost: %d)", e.Destination, e.NextHop, e.Cost)
}

// RouterStats are per-router protocol counters.
type RouterStats struct {
	UpdatesSent     uint64
	UpdatesReceived uint64
	RouteChanges    uint64
	LSPsSent        uint64
	LSPsReceived    uint64
	SPFRuns         uint64
	Dropped         uint64
}

func (s RouterStats) Plus(o RouterStats) RouterStats {
	return RouterStats{
		UpdatesSent:     s.UpdatesSent + o.UpdatesSent,
		UpdatesReceived: s.UpdatesReceived + o.UpdatesReceived,
		RouteChanges:    s.RouteChanges + o.RouteChanges,
		LSPsSent:        s.LSPsSent + o.LSPsSent,
		LSPsReceived:    s.LSPsReceived + o.LSPsReceived,
		SPFRuns:         s.SPFRuns + o.SPFRuns,
		Dropped:         s.Dropped + o.Dropped,
	}
}

func (s RouterStats) Minus(o RouterStats) RouterStats {
	return RouterStats{
		UpdatesSent:     s.UpdatesSent - o.UpdatesSent,
		UpdatesReceived: s.UpdatesReceived - o.UpdatesReceived,
		RouteChanges:    s.RouteChanges - o.RouteChanges,
		LSPsSent:        s.LSPsSent - o.LSPsSent,
		LSPsReceived:    s.LSPsReceived - o.LSPsReceived,
		SPFRuns:         s.SPFRuns - o.SPFRuns,
		Dropped:         s.Dropped - o.Dropped,
	}
}

// Each calls fn with the metric name and value of every counter.
func (s RouterStats) Each(fn func(name string, v uint64)) {
	fn("updates_sent", s.UpdatesSent)
	fn("updates_received", s.UpdatesReceived)
	fn("route_changes", s.RouteChanges)
	fn("lsps_sent", s.LSPsSent)
	fn("lsps_received", s.LSPsReceived)
	fn("spf_runs", s.SPFRuns)
	fn("dropped", s.Dropped)
}
