package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/encodeous/routesim/core"
	"github.com/encodeous/routesim/state"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect <router>",
	Aliases: []string{"i"},
	Short:   "Converges the topology and dumps the protocol state of one router",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := state.NodeId(args[0])
		cfg, err := state.LoadTopologyCfg(configPath)
		if err != nil {
			return err
		}
		topo, err := core.TopologyFromConfig(cfg)
		if err != nil {
			return err
		}
		logger, closeLog, err := newLogger(slogLevel(cmd), "")
		if err != nil {
			return err
		}
		defer closeLog()

		opts := core.OptionsFromConfig(cfg.Simulation)
		opts.Log = logger
		sim := core.NewSimulation(topo, opts)
		ctx := cmd.Context()
		if err := sim.Start(ctx); err != nil {
			return err
		}
		err = inspectRouter(ctx, sim, id, cmd.OutOrStdout())
		if stopErr := sim.Stop(); err == nil {
			err = stopErr
		}
		return err
	},
	GroupID: "sim",
}

// inspectRouter converges and dumps the distance table and link-state database of id.
func inspectRouter(ctx context.Context, sim *core.Simulation, id state.NodeId, out io.Writer) error {
	if _, err := sim.Converge(ctx); err != nil {
		return err
	}
	dv, err := sim.DistanceVectorRouter(id)
	if err != nil {
		return err
	}
	ls, err := sim.LinkStateRouter(id)
	if err != nil {
		return err
	}
	table, err := dv.DistanceTable()
	if err != nil {
		return err
	}
	db, err := ls.Database()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "== distance table of %s ==\n", id)
	for _, dst := range slices.Sorted(maps.Keys(table)) {
		fmt.Fprintln(out, table[dst])
	}
	fmt.Fprintf(out, "== link-state database of %s ==\n", id)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORIGIN\tSEQNO\tAGE\tNEIGHBOUR\tCOST\tSTATUS")
	for _, origin := range slices.Sorted(maps.Keys(db)) {
		lsp := db[origin]
		for _, l := range lsp.Links {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\t%s\n", origin, lsp.Seqno, lsp.Age, l.Destination, l.Cost, l.Status)
		}
	}
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
}
