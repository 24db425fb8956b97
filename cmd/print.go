package cmd

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/encodeous/routesim/core"
	"github.com/encodeous/routesim/state"
	"github.com/google/go-cmp/cmp"
)

func printTables(w io.Writer, title string, tables map[state.NodeId][]state.RoutingEntry) error {
	fmt.Fprintf(w, "== %s ==\n", title)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTER\tDESTINATION\tNEXT HOP\tCOST")
	for _, id := range slices.Sorted(maps.Keys(tables)) {
		for _, e := range tables[id] {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", id, e.Destination, e.NextHop, e.Cost)
		}
	}
	return tw.Flush()
}

func printStats(w io.Writer, stats core.Stats) error {
	fmt.Fprintf(w, "== stats (run %s) ==\n", stats.RunId)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROTOCOL\tROUTER\tSENT\tRECEIVED\tDROPPED\tROUTE CHANGES\tSPF RUNS")
	row := func(protocol, router string, s state.RouterStats) {
		sent, received := s.UpdatesSent, s.UpdatesReceived
		if protocol == core.ProtocolLS {
			sent, received = s.LSPsSent, s.LSPsReceived
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n", protocol, router, sent, received, s.Dropped, s.RouteChanges, s.SPFRuns)
	}
	for _, id := range slices.Sorted(maps.Keys(stats.DistanceVector)) {
		row(core.ProtocolDV, string(id), stats.DistanceVector[id])
	}
	row(core.ProtocolDV, "total", stats.DVTotal)
	for _, id := range slices.Sorted(maps.Keys(stats.LinkState)) {
		row(core.ProtocolLS, string(id), stats.LinkState[id])
	}
	row(core.ProtocolLS, "total", stats.LSTotal)
	return tw.Flush()
}

func routeCosts(entries []state.RoutingEntry) map[state.NodeId]uint64 {
	out := make(map[state.NodeId]uint64, len(entries))
	for _, e := range entries {
		out[e.Destination] = e.Cost
	}
	return out
}

// disagreements lists the routers whose distance-vector and link-state costs differ.
func disagreements(tables core.RoutingTables) []state.NodeId {
	out := make([]state.NodeId, 0)
	for _, id := range slices.Sorted(maps.Keys(tables.DistanceVector)) {
		if !cmp.Equal(routeCosts(tables.DistanceVector[id]), routeCosts(tables.LinkState[id])) {
			out = append(out, id)
		}
	}
	return out
}
