package state

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// DVState is the state owned by one distance-vector router. It must only be
// accessed from that router's goroutine.
type DVState struct {
	Id NodeId
	// Neighbours maps a directly attached router to the link cost.
	Neighbours map[NodeId]uint64
	Table      map[NodeId]DistanceEntry
	// MetricCeiling, when non-zero, turns any finite candidate above it into Inf.
	MetricCeiling uint64
	Stats         RouterStats
}

func NewDVState(id NodeId) *DVState {
	return &DVState{
		Id:         id,
		Neighbours: make(map[NodeId]uint64),
		Table: map[NodeId]DistanceEntry{
			id: {
				Destination: id,
				Distance:    Finite(0),
				NextHop:     id,
				LastUpdated: time.Now(),
			},
		},
	}
}

func (s *DVState) IsNeighbour(id NodeId) bool {
	_, ok := s.Neighbours[id]
	return ok
}

// StringTable renders the distance table, one sorted line per destination.
func (s *DVState) StringTable() string {
	out := make([]string, 0, len(s.Table))
	for _, dst := range slices.Sorted(maps.Keys(s.Table)) {
		out = append(out, s.Table[dst].String())
	}
	return strings.Join(out, "\n")
}

// LSState is the state owned by one link-state router.
type LSState struct {
	Id NodeId
	// Seqno is the sequence number of the newest self-originated LSP.
	Seqno     uint64
	Adjacency map[NodeId]Adjacency
	Db        *LinkStateDatabase
	Routes    map[NodeId]RoutingEntry
	Stats     RouterStats
}

func NewLSState(id NodeId, maxAge time.Duration) *LSState {
	return &LSState{
		Id:        id,
		Adjacency: make(map[NodeId]Adjacency),
		Db:        NewLinkStateDatabase(maxAge),
		Routes: map[NodeId]RoutingEntry{
			id: {Destination: id, NextHop: id, Cost: 0},
		},
	}
}

// IsUpNeighbour reports whether id is attached over a link that is up.
func (s *LSState) IsUpNeighbour(id NodeId) bool {
	a, ok := s.Adjacency[id]
	return ok && a.Status == LinkUp
}

// UpNeighbours returns the neighbours reachable over up links, sorted.
func (s *LSState) UpNeighbours() []NodeId {
	out := make([]NodeId, 0, len(s.Adjacency))
	for _, id := range slices.Sorted(maps.Keys(s.Adjacency)) {
		if s.Adjacency[id].Status == LinkUp {
			out = append(out, id)
		}
	}
	return out
}

func (s *LSState) StringRoutes() string {
	out := make([]string, 0, len(s.Routes))
	for _, dst := range slices.Sorted(maps.Keys(s.Routes)) {
		out = append(out, s.Routes[dst].String())
	}
	return strings.Join(out, "\n")
}

func (s *LSState) String() string {
	return fmt.Sprintf("ls(%s, seqno: %d, lsdb: %d)", s.Id, s.Seqno, s.Db.Len())
}
