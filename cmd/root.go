package cmd

import (
	"os"

	"github.com/encodeous/routesim/state"
	"github.com/spf13/cobra"
)

var configPath = state.DefaultConfigPath

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "routesim",
	Short: "Routing protocol simulator",
	Long: `routesim runs a distance-vector and a link-state router for every router of a topology.
Both protocols are driven to convergence, link failures can be injected and the resulting routing tables compared.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Create Topologies",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "sim",
		Title: "Simulation Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", configPath, "topology config")
}
