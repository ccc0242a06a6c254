package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"factorysim.ai/internal/sim/catalogs"
	"factorysim.ai/internal/sim/scenario"
	"factorysim.ai/internal/sim/tuning"
)

// NewCheckCommand creates the check command
func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate catalogs, tuning and scenario scripts",
		Long: `Load every catalog against its schema, validate tuning.yaml and every script
under <configs>/scenarios, then print the catalog digests.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout())
		},
	}
	return cmd
}

func runCheck(out io.Writer) error {
	cats, tune, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "✓ Catalogs valid")
	fmt.Fprintf(out, "  Resources:  %d  %s\n", len(cats.Resources.ByID), cats.Resources.Digest)
	fmt.Fprintf(out, "  Structures: %d  %s\n", len(cats.Structures.ByID), cats.Structures.Digest)
	fmt.Fprintf(out, "  Recipes:    %d  %s\n", len(cats.Recipes.ByID), cats.Recipes.Digest)

	if raw, err := os.ReadFile(resolvedTuningPath()); err == nil {
		fmt.Fprintf(out, "✓ Tuning valid  %s\n", catalogs.DigestBytes(raw))
	} else {
		fmt.Fprintln(out, "✓ Tuning defaults (no tuning.yaml)")
	}
	printTuning(out, tune)

	scripts, _ := filepath.Glob(filepath.Join(configDir, "scenarios", "*.yaml"))
	sort.Strings(scripts)
	for _, path := range scripts {
		s, err := scenario.Load(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Scenario %s: %d steps, %d ticks\n", s.Name, len(s.Steps), s.Length())
	}
	return nil
}

func printTuning(out io.Writer, t tuning.Tuning) {
	fmt.Fprintf(out, "  Tick rate:        %d Hz\n", t.TickRateHz)
	fmt.Fprintf(out, "  Porter speed:     %.3f tiles/tick\n", t.PorterSpeed)
	fmt.Fprintf(out, "  Porter TTL:       %d ticks\n", t.PorterTTLTicks)
	fmt.Fprintf(out, "  Dispatch gap:     %d ticks\n", t.PorterDispatchTicks)
	fmt.Fprintf(out, "  Route max nodes:  %d\n", t.RouteMaxNodes)
	fmt.Fprintf(out, "  Power link range: %d\n", t.PowerLinkRange)
}
