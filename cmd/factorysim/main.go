package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configDir  string
	tuningPath string
)

// NewRootCommand creates the root command for the CLI
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "factorysim",
		Short: "Deterministic factory simulation",
		Long: `factorysim runs a tick-based factory world: structures produce and consume
resources, porters carry them along discovered routes, and power grids trip
when overloaded.

Examples:
  factorysim serve --addr 127.0.0.1:8080
  factorysim check
  factorysim simulate --scenario configs/scenarios/demo.yaml --ticks 200
  factorysim events --file data/runs/<run-id>/events/events-<hour>.jsonl.zst`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVar(&configDir, "configs", "./configs",
		"Config directory holding the catalogs")
	rootCmd.PersistentFlags().StringVar(&tuningPath, "tuning", "",
		"Path to tuning.yaml (default: <configs>/tuning.yaml)")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewCheckCommand())
	rootCmd.AddCommand(NewSimulateCommand())
	rootCmd.AddCommand(NewEventsCommand())

	return rootCmd
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
