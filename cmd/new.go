package cmd

import (
	"fmt"
	"os"

	"github.com/encodeous/routesim/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var interactive bool

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Writes an example topology",
	Long:  `Writes the five router example network, with one link failure and recovery, to the config path. Use - to print it instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(state.DefaultTopologyCfg())
		if err != nil {
			return err
		}
		if configPath == "-" {
			_, err = cmd.OutOrStdout().Write(out)
			return err
		}
		path := configPath
		if interactive {
			path, err = safeSaveFile(path, "Topology Config")
			if err != nil {
				return err
			}
		} else if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := os.WriteFile(path, out, 0600); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote the example topology to %s\n", path)
		return nil
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(newCmd)

	newCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Prompt for the output path")
}
