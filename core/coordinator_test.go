package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/encodeous/routesim/perf"
	"github.com/encodeous/routesim/state"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func scenarioA(t *testing.T) *Topology {
	cfg := state.DefaultTopologyCfg()
	topo, err := TopologyFromConfig(&cfg)
	require.NoError(t, err)
	return topo
}

func chain(t *testing.T, ids ...state.NodeId) *Topology {
	topo := NewTopology()
	for i := 1; i < len(ids); i++ {
		require.NoError(t, topo.AddLink(ids[i-1], ids[i], 1))
	}
	return topo
}

func startSim(t *testing.T, topo *Topology, opts Options) *Simulation {
	sim := NewSimulation(topo, opts)
	require.NoError(t, sim.Start(context.Background()))
	t.Cleanup(func() {
		assert.NoError(t, sim.Stop())
	})
	return sim
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func costs(entries []state.RoutingEntry) map[state.NodeId]uint64 {
	out := make(map[state.NodeId]uint64, len(entries))
	for _, e := range entries {
		out[e.Destination] = e.Cost
	}
	return out
}

func TestSimulation_ScenarioA(t *testing.T) {
	ctx := testCtx(t)
	sim := startSim(t, scenarioA(t), Options{})

	res, err := sim.Converge(ctx)
	require.NoError(t, err)
	assert.Greater(t, res.Rounds, 1)
	assert.Greater(t, res.Changes, uint64(0))

	tables, err := sim.RoutingTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []state.RoutingEntry{
		{Destination: "a", NextHop: "a", Cost: 0},
		{Destination: "b", NextHop: "b", Cost: 2},
		{Destination: "c", NextHop: "b", Cost: 3},
		{Destination: "d", NextHop: "b", Cost: 5},
		{Destination: "e", NextHop: "b", Cost: 6},
	}, tables.DistanceVector["a"])
	assert.Equal(t, tables.DistanceVector["a"], tables.LinkState["a"])

	for id := range tables.DistanceVector {
		if diff := cmp.Diff(costs(tables.LinkState[id]), costs(tables.DistanceVector[id])); diff != "" {
			t.Errorf("router %s: dv and ls costs differ (-ls +dv):\n%s", id, diff)
		}
		assert.Len(t, tables.DistanceVector[id], 5)
	}
}

func TestSimulation_ConvergeIsIdempotent(t *testing.T) {
	ctx := testCtx(t)
	sim := startSim(t, scenarioA(t), Options{})
	_, err := sim.Converge(ctx)
	require.NoError(t, err)
	before, err := sim.RoutingTables(ctx)
	require.NoError(t, err)

	res, err := sim.ConvergeDistanceVector(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, uint64(0), res.Changes)

	after, err := sim.RoutingTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSimulation_ScenarioB(t *testing.T) {
	ctx := testCtx(t)
	sim := startSim(t, scenarioA(t), Options{})
	_, err := sim.Converge(ctx)
	require.NoError(t, err)

	require.NoError(t, sim.SetLinkStatus(ctx, "b", "c", state.LinkDown))
	_, err = sim.Converge(ctx)
	require.NoError(t, err)

	tables, err := sim.RoutingTables(ctx)
	require.NoError(t, err)
	want := map[state.NodeId]uint64{"a": 0, "b": 2, "c": 5, "d": 5, "e": 6}
	assert.Equal(t, want, costs(tables.DistanceVector["a"]))
	assert.Equal(t, want, costs(tables.LinkState["a"]))
	for _, table := range []map[state.NodeId][]state.RoutingEntry{tables.DistanceVector, tables.LinkState} {
		for _, e := range table["a"] {
			if e.Destination == "c" {
				assert.Equal(t, state.NodeId("c"), e.NextHop)
			}
		}
	}

	// and back up again
	require.NoError(t, sim.SetLinkStatus(ctx, "c", "b", state.LinkUp))
	_, err = sim.Converge(ctx)
	require.NoError(t, err)
	tables, err = sim.RoutingTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), costs(tables.DistanceVector["a"])["c"])
	assert.Equal(t, uint64(3), costs(tables.LinkState["a"])["c"])

	assert.ErrorIs(t, sim.SetLinkStatus(ctx, "a", "e", state.LinkDown), ErrUnknownLink)
}

func TestSimulation_ScenarioC(t *testing.T) {
	ctx := testCtx(t)
	sim := startSim(t, chain(t, "a", "b", "c", "d", "e"), Options{})
	require.NoError(t, sim.ConvergeLinkState(ctx))

	a, err := sim.LinkStateRouter("a")
	require.NoError(t, err)
	e, err := sim.LinkStateRouter("e")
	require.NoError(t, err)

	dbA, err := a.Database()
	require.NoError(t, err)
	dbE, err := e.Database()
	require.NoError(t, err)
	eSeqno, err := e.Seqno()
	require.NoError(t, err)

	require.Contains(t, dbA, state.NodeId("e"))
	assert.Equal(t, eSeqno, dbA["e"].Seqno)
	assert.Equal(t, uint32(4), dbA["e"].Age)
	require.Contains(t, dbE, state.NodeId("a"))

	for _, id := range []state.NodeId{"b", "c", "d"} {
		r, err := sim.LinkStateRouter(id)
		require.NoError(t, err)
		db, err := r.Database()
		require.NoError(t, err)
		if diff := cmp.Diff(dbA, db, cmpopts.IgnoreFields(state.LSP{}, "Age")); diff != "" {
			t.Errorf("database of %s differs from a (-a +%s):\n%s", id, id, diff)
		}
	}

	tables, err := sim.RoutingTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), costs(tables.LinkState["a"])["e"])
}

func TestSimulation_NoNeighbours(t *testing.T) {
	ctx := testCtx(t)
	topo := chain(t, "a", "b")
	topo.AddRouter("z")
	sim := startSim(t, topo, Options{})
	_, err := sim.Converge(ctx)
	require.NoError(t, err)

	tables, err := sim.RoutingTables(ctx)
	require.NoError(t, err)
	self := []state.RoutingEntry{{Destination: "z", NextHop: "z", Cost: 0}}
	assert.Equal(t, self, tables.DistanceVector["z"])
	assert.Equal(t, self, tables.LinkState["z"])
	assert.NotContains(t, costs(tables.LinkState["a"]), state.NodeId("z"))
}

func TestSimulation_NotConverged(t *testing.T) {
	ctx := testCtx(t)
	reg := perf.NewRegistry()
	sim := startSim(t, scenarioA(t), Options{MaxRounds: 1, Registry: reg})

	res, err := sim.ConvergeDistanceVector(ctx)
	assert.ErrorIs(t, err, ErrNotConverged)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ConvergenceTotal.WithLabelValues(ProtocolDV, "not_converged")))
}

// TestSimulation_PartitionWithCeiling cuts off a stub router behind a
// triangle, the other routers must count up to the ceiling and give up.
func TestSimulation_PartitionWithCeiling(t *testing.T) {
	ctx := testCtx(t)
	topo := NewTopology()
	require.NoError(t, topo.AddLink("a", "b", 1))
	require.NoError(t, topo.AddLink("b", "c", 1))
	require.NoError(t, topo.AddLink("a", "c", 1))
	require.NoError(t, topo.AddLink("c", "d", 1))
	sim := startSim(t, topo, Options{Shuffle: true, Seed: 42, MetricCeiling: 16})

	_, err := sim.Converge(ctx)
	require.NoError(t, err)
	require.NoError(t, sim.SetLinkStatus(ctx, "c", "d", state.LinkDown))
	_, err = sim.Converge(ctx)
	require.NoError(t, err)

	tables, err := sim.RoutingTables(ctx)
	require.NoError(t, err)
	for _, id := range []state.NodeId{"a", "b", "c"} {
		assert.NotContains(t, costs(tables.DistanceVector[id]), state.NodeId("d"), "dv %s", id)
		assert.NotContains(t, costs(tables.LinkState[id]), state.NodeId("d"), "ls %s", id)
		assert.Len(t, tables.DistanceVector[id], 3)
	}
	assert.Equal(t, []state.RoutingEntry{{Destination: "d", NextHop: "d", Cost: 0}}, tables.DistanceVector["d"])
}

func TestSimulation_RandomDelay(t *testing.T) {
	ctx := testCtx(t)
	sim := startSim(t, scenarioA(t), Options{MaxDelay: 2 * time.Millisecond, Seed: 7})
	_, err := sim.Converge(ctx)
	require.NoError(t, err)

	tables, err := sim.RoutingTables(ctx)
	require.NoError(t, err)
	want := map[state.NodeId]uint64{"a": 0, "b": 2, "c": 3, "d": 5, "e": 6}
	assert.Equal(t, want, costs(tables.DistanceVector["a"]))
	assert.Equal(t, want, costs(tables.LinkState["a"]))
}

func TestSimulation_Instrumentation(t *testing.T) {
	ctx := testCtx(t)
	reg := perf.NewRegistry()
	tr := NewTrace()
	defer tr.Close()
	ch, unsubscribe := tr.Subscribe()

	var events atomic.Int64
	var spf atomic.Int64
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case msg := <-ch:
				events.Add(1)
				if msg.(TraceEvent).Event == ShortestPathsComputed {
					spf.Add(1)
				}
			case <-stop:
				return
			}
		}
	}()

	sim := NewSimulation(scenarioA(t), Options{Registry: reg, Trace: tr})
	require.NoError(t, sim.Start(ctx))
	_, err := sim.Converge(ctx)
	require.NoError(t, err)
	require.NoError(t, sim.SetLinkStatus(ctx, "d", "e", state.LinkDown))
	// queries are not sent updates
	dvA, err := sim.DistanceVectorRouter("a")
	require.NoError(t, err)
	for _, neigh := range []state.NodeId{"b", "c"} {
		_, err = dvA.SendDistanceVector(neigh)
		require.NoError(t, err)
	}

	stats, err := sim.Stats(ctx)
	require.NoError(t, err)
	// trace delivery is asynchronous
	assert.Eventually(t, func() bool {
		return spf.Load() == int64(stats.LSTotal.SPFRuns)
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, sim.Stop())
	close(stop)
	<-done
	unsubscribe()

	assert.Equal(t, sim.RunId, stats.RunId)
	assert.Len(t, stats.DistanceVector, 5)
	assert.Greater(t, stats.DVTotal.UpdatesSent, uint64(0))
	assert.Equal(t, stats.DVTotal.UpdatesSent, stats.DVTotal.UpdatesReceived)
	assert.Greater(t, stats.LSTotal.LSPsSent, uint64(0))
	assert.Greater(t, stats.LSTotal.SPFRuns, uint64(0))
	assert.Equal(t, stats.LSTotal.LSPsSent, stats.LSTotal.LSPsReceived+stats.LSTotal.Dropped)

	assert.Equal(t, 5.0, testutil.ToFloat64(reg.Routers))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ConvergenceTotal.WithLabelValues(ProtocolDV, "converged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ConvergenceTotal.WithLabelValues(ProtocolLS, "converged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.LinkEventsTotal.WithLabelValues("down")))
	assert.Equal(t, float64(stats.LSTotal.SPFRuns), sumRouterEvents(reg, ProtocolLS, topoIds, "spf_runs"))
	assert.Equal(t, float64(stats.DVTotal.UpdatesReceived), sumRouterEvents(reg, ProtocolDV, topoIds, "updates_received"))
	assert.Greater(t, events.Load(), int64(0))
}

var topoIds = []state.NodeId{"a", "b", "c", "d", "e"}

func sumRouterEvents(reg *perf.Registry, protocol string, ids []state.NodeId, event string) float64 {
	total := 0.0
	for _, id := range ids {
		total += testutil.ToFloat64(reg.RouterEventsTotal.WithLabelValues(protocol, string(id), event))
	}
	return total
}

func TestSimulation_Lifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := testCtx(t)
	sim := NewSimulation(scenarioA(t), Options{LSPMaxAge: time.Hour})

	_, err := sim.ConvergeDistanceVector(ctx)
	assert.Error(t, err)
	assert.NoError(t, sim.Stop())

	require.NoError(t, sim.Start(ctx))
	assert.Error(t, sim.Start(ctx))
	_, err = sim.Converge(ctx)
	require.NoError(t, err)

	_, err = sim.DistanceVectorRouter("zz")
	assert.ErrorIs(t, err, ErrUnknownRouter)
	_, err = sim.LinkStateRouter("zz")
	assert.ErrorIs(t, err, ErrUnknownRouter)
	assert.Len(t, sim.Topology(), 7)

	require.NoError(t, sim.Stop())
	assert.NoError(t, sim.Stop())
	_, err = sim.RoutingTables(ctx)
	assert.Error(t, err)
	assert.Error(t, sim.Context().Err())
}

func TestDVRouter_Direct(t *testing.T) {
	ctx := testCtx(t)
	sim := startSim(t, chain(t, "a", "b", "c"), Options{})
	_, err := sim.ConvergeDistanceVector(ctx)
	require.NoError(t, err)

	b, err := sim.DistanceVectorRouter("b")
	require.NoError(t, err)
	vec, err := b.GetDistanceVector()
	require.NoError(t, err)
	assert.Equal(t, state.DistanceVector{"a": state.Finite(1), "b": state.Finite(0), "c": state.Finite(1)}, vec)

	a, err := sim.DistanceVectorRouter("a")
	require.NoError(t, err)
	before, err := a.Stats()
	require.NoError(t, err)
	poisoned, err := a.SendDistanceVector("b")
	require.NoError(t, err)
	assert.Equal(t, state.DistanceVector{"a": state.Finite(0), "b": state.Inf, "c": state.Inf}, poisoned)
	after, err := a.Stats()
	require.NoError(t, err)
	assert.Equal(t, before.UpdatesSent, after.UpdatesSent)
	assert.Greater(t, after.UpdatesSent, uint64(0))

	changed, err := a.ReceiveDistanceVector("b", vec)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, a.AddNeighbor("c", 1))
	table, err := a.DistanceTable()
	require.NoError(t, err)
	assert.Equal(t, state.NodeId("c"), table["c"].NextHop)
	assert.Equal(t, state.Finite(1), table["c"].Distance)
	assert.ErrorIs(t, a.AddNeighbor("a", 1), ErrSelfNeighbour)

	lost, err := a.RemoveNeighbor("c")
	require.NoError(t, err)
	assert.True(t, lost)
}

func TestSimulation_LSPsRefreshedBeforeMaxAge(t *testing.T) {
	ctx := testCtx(t)
	maxAge := 200 * time.Millisecond
	sim := startSim(t, scenarioA(t), Options{LSPMaxAge: maxAge})
	_, err := sim.Converge(ctx)
	require.NoError(t, err)

	// several max ages without any topology change
	time.Sleep(3*maxAge + maxAge/2)

	tables, err := sim.RoutingTables(ctx)
	require.NoError(t, err)
	for _, id := range topoIds {
		assert.Len(t, tables.LinkState[id], len(topoIds), "ls %s", id)
		assert.Equal(t, costs(tables.DistanceVector[id]), costs(tables.LinkState[id]), "router %s", id)
	}
	a, err := sim.LinkStateRouter("a")
	require.NoError(t, err)
	seqno, err := a.Seqno()
	require.NoError(t, err)
	assert.Greater(t, seqno, uint64(2))
	db, err := a.Database()
	require.NoError(t, err)
	assert.Len(t, db, len(topoIds))
}
