package core

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/encodeous/routesim/state"
	"github.com/google/go-cmp/cmp"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// RouterHarness stands in for a router actor, it records everything the
// algorithm asks of its router.
type RouterHarness struct {
	actions []HarnessEvent
}

func (h *RouterHarness) SendLSP(neigh state.NodeId, lsp state.LSP) {
	h.actions = append(h.actions, MakeEvent("SEND_LSP", neigh, lsp))
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	x := make([]any, 0)
	x = append(x, event)
	x = append(x, desc)
	x = append(x, args...)
	h.actions = append(h.actions, MakeEvent("LOG", x...))
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

func (h *RouterHarness) take(logs bool) HarnessEvents {
	x := make([]HarnessEvent, 0)
	rest := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if (action.Message == "LOG") == logs {
			x = append(x, action)
		} else {
			rest = append(rest, action)
		}
	}
	h.actions = rest
	return x
}

// GetActions returns and clears everything except log events.
func (h *RouterHarness) GetActions() HarnessEvents {
	return h.take(false)
}

// GetLogs returns and clears the log events.
func (h *RouterHarness) GetLogs() HarnessEvents {
	return h.take(true)
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !cmp.Equal(event.Args[i], arg) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

func (e HarnessEvents) Count(msg string) int {
	n := 0
	for _, event := range e {
		if event.Message == msg {
			n++
		}
	}
	return n
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

func MakeDVState(id state.NodeId, neighs map[state.NodeId]int) *state.DVState {
	s := state.NewDVState(id)
	h := &RouterHarness{}
	for _, n := range slices.Sorted(maps.Keys(neighs)) {
		if err := DVAddNeighbour(s, h, n, neighs[n]); err != nil {
			panic(err)
		}
	}
	return s
}

func MakeLSState(id state.NodeId, neighs map[state.NodeId]int) *state.LSState {
	s := state.NewLSState(id, 0)
	for n, cost := range neighs {
		s.Adjacency[n] = state.Adjacency{Cost: uint64(cost), Status: state.LinkUp}
	}
	return s
}

func MakeLSP(origin state.NodeId, seqno uint64, links map[state.NodeId]int) state.LSP {
	adj := make(map[state.NodeId]state.Adjacency, len(links))
	for n, cost := range links {
		adj[n] = state.Adjacency{Cost: uint64(cost), Status: state.LinkUp}
	}
	return state.LSPFromAdjacency(origin, seqno, adj)
}
