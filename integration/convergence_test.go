//go:build integration

package integration

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/encodeous/routesim/core"
	"github.com/encodeous/routesim/state"
	"go.uber.org/goleak"
)

func TestGridConvergence(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	const n = 6
	vh := &VirtualHarness{}
	ids := vh.NewRouters("r", n*n)
	rng := rand.New(rand.NewPCG(1, 2))
	for y := range n {
		for x := range n {
			if x+1 < n {
				vh.AddLink(ids[y*n+x], ids[y*n+x+1], 1+rng.IntN(5))
			}
			if y+1 < n {
				vh.AddLink(ids[y*n+x], ids[(y+1)*n+x], 1+rng.IntN(5))
			}
		}
	}
	vh.Start(t)
	vh.AssertOptimal(t)
	vh.Stop(t)
}

func TestGroupGraphConvergence(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	vh := &VirtualHarness{}
	vh.NewRouters("core", 3)
	vh.NewRouters("edge", 6)
	vh.Cfg.DefaultCost = 2
	vh.Cfg.Graph = []string{
		"west = edge0, edge1, edge2",
		"east = edge3, edge4, edge5",
		"core0, core1, core2",
		"core0, west",
		"core2, east",
		"edge2, edge3",
	}
	vh.Options = core.Options{Shuffle: true, Seed: 9}
	vh.Start(t)
	vh.AssertOptimal(t)
	vh.Stop(t)
}

// TestLinkFlaps repeatedly fails and restores random links under random
// message delays and checks both protocols reconverge to the optimal paths.
func TestLinkFlaps(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	vh := &VirtualHarness{}
	ids := vh.NewRouters("n", 10)
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 1; i < len(ids); i++ {
		vh.AddLink(ids[i], ids[rng.IntN(i)], 1+rng.IntN(9))
	}
	for i := 0; i+3 < len(ids); i += 3 {
		vh.AddLink(ids[i], ids[i+3], 1+rng.IntN(9))
	}
	vh.Options = core.Options{MaxDelay: time.Millisecond, Seed: 5, MetricCeiling: 100}
	vh.Start(t)
	vh.AssertOptimal(t)

	links := vh.Sim.Topology()
	for range 8 {
		l := links[rng.IntN(len(links))]
		if err := vh.Sim.SetLinkStatus(vh.Context, l.Source, l.Destination, state.LinkDown); err != nil {
			t.Fatal(err)
		}
		vh.AssertOptimal(t)
		if err := vh.Sim.SetLinkStatus(vh.Context, l.Source, l.Destination, state.LinkUp); err != nil {
			t.Fatal(err)
		}
		vh.AssertOptimal(t)
	}
	vh.Stop(t)
}
