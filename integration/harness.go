//go:build integration

package integration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/encodeous/routesim/core"
	"github.com/encodeous/routesim/state"
	"github.com/encodeous/tint"
	"github.com/stretchr/testify/require"
)

// VirtualHarness builds a topology config the same way a user would and runs
// it as a simulation.
type VirtualHarness struct {
	Cfg     state.TopologyCfg
	Options core.Options
	Sim     *core.Simulation
	Context context.Context
	cancel  context.CancelFunc
}

func (vh *VirtualHarness) NewRouters(prefix string, n int) []state.NodeId {
	ids := make([]state.NodeId, 0, n)
	for i := range n {
		id := state.NodeId(fmt.Sprintf("%s%d", prefix, i))
		vh.Cfg.Routers = append(vh.Cfg.Routers, id)
		ids = append(ids, id)
	}
	return ids
}

func (vh *VirtualHarness) AddLink(a, b state.NodeId, cost int) {
	vh.Cfg.Links = append(vh.Cfg.Links, state.LinkCfg{From: a, To: b, Cost: cost})
}

func (vh *VirtualHarness) Start(t *testing.T) {
	require.NoError(t, state.TopologyConfigValidator(&vh.Cfg))
	topo, err := core.TopologyFromConfig(&vh.Cfg)
	require.NoError(t, err)
	if vh.Options.Log == nil {
		vh.Options.Log = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:        slog.LevelInfo,
			TimeFormat:   "15:04:05",
			CustomPrefix: "harness",
		}))
	}
	vh.Context, vh.cancel = context.WithTimeout(context.Background(), time.Minute)
	vh.Sim = core.NewSimulation(topo, vh.Options)
	require.NoError(t, vh.Sim.Start(vh.Context))
}

func (vh *VirtualHarness) Stop(t *testing.T) {
	require.NoError(t, vh.Sim.Stop())
	vh.cancel()
}

// Expected computes every shortest path cost over the links that are up.
func (vh *VirtualHarness) Expected() map[state.NodeId]map[state.NodeId]uint64 {
	const inf = ^uint64(0) / 2
	ids := vh.Cfg.Routers
	d := make(map[state.NodeId]map[state.NodeId]uint64, len(ids))
	for _, a := range ids {
		d[a] = make(map[state.NodeId]uint64, len(ids))
		for _, b := range ids {
			d[a][b] = inf
		}
		d[a][a] = 0
	}
	for _, l := range vh.Sim.Topology() {
		if l.Status != state.LinkUp {
			continue
		}
		d[l.Source][l.Destination] = l.Cost
		d[l.Destination][l.Source] = l.Cost
	}
	for _, k := range ids {
		for _, i := range ids {
			for _, j := range ids {
				if d[i][k]+d[k][j] < d[i][j] {
					d[i][j] = d[i][k] + d[k][j]
				}
			}
		}
	}
	for _, a := range ids {
		for b, c := range d[a] {
			if c == inf {
				delete(d[a], b)
			}
		}
	}
	return d
}

func costs(entries []state.RoutingEntry) map[state.NodeId]uint64 {
	out := make(map[state.NodeId]uint64, len(entries))
	for _, e := range entries {
		out[e.Destination] = e.Cost
	}
	return out
}

// AssertOptimal converges both protocols and checks every table against Expected.
func (vh *VirtualHarness) AssertOptimal(t *testing.T) {
	t.Helper()
	_, err := vh.Sim.Converge(vh.Context)
	require.NoError(t, err)
	tables, err := vh.Sim.RoutingTables(vh.Context)
	require.NoError(t, err)
	for id, want := range vh.Expected() {
		require.Equal(t, want, costs(tables.DistanceVector[id]), "dv %s", id)
		require.Equal(t, want, costs(tables.LinkState[id]), "ls %s", id)
	}
}
