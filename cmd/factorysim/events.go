package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	persistlog "factorysim.ai/internal/persistence/log"
	"factorysim.ai/internal/sim/world"
)

// NewEventsCommand creates the events command
func NewEventsCommand() *cobra.Command {
	var (
		file   string
		runDir string
		typ    string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Dump events from a tick log",
		Long: `Decode a compressed tick log and print one JSON event per line. Pass --run
to read every hourly file of a run in order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			switch {
			case file != "":
				files = []string{file}
			case runDir != "":
				fs, err := persistlog.TickLogFiles(runDir)
				if err != nil {
					return err
				}
				files = fs
			default:
				return fmt.Errorf("one of --file or --run is required")
			}
			return dumpEvents(cmd.OutOrStdout(), files, world.EventType(typ))
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "A single events-*.jsonl.zst file")
	cmd.Flags().StringVar(&runDir, "run", "", "A run directory under <data>/runs")
	cmd.Flags().StringVar(&typ, "type", "", "Only print events of this type")

	return cmd
}

func dumpEvents(out io.Writer, files []string, typ world.EventType) error {
	enc := json.NewEncoder(out)
	for _, f := range files {
		err := persistlog.ReadTickLog(f, func(e world.TickLogEntry) error {
			for _, ev := range e.Events {
				if typ != "" && ev.Type != typ {
					continue
				}
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
	}
	return nil
}
