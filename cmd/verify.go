package cmd

import (
	"fmt"

	"github.com/encodeous/routesim/core"
	"github.com/encodeous/routesim/state"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validates the topology config and prints the expanded links",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := state.LoadTopologyCfg(configPath)
		if err != nil {
			return err
		}
		topo, err := core.TopologyFromConfig(cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		links := topo.Links()
		fmt.Fprintf(out, "Topology is valid: %d routers, %d links, %d events\n", len(topo.Routers()), len(links), len(cfg.Events))
		for _, l := range links {
			fmt.Fprintf(out, "  %s - %s (cost: %d)\n", l.Source, l.Destination, l.Cost)
		}
		return nil
	},
	GroupID: "sim",
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
