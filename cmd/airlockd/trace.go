package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marscolony/airlock-go/cmd/airlockd/commands"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect CBOR trace files written by airlockd run --trace",
}

var traceViewCmd = &cobra.Command{
	Use:   "view <file>",
	Short: "View a trace file in human-readable format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter commands.ViewFilter
		filter.Subsystem, _ = cmd.Flags().GetString("subsystem")

		if s, _ := cmd.Flags().GetString("layer"); s != "" {
			l, err := commands.ParseLayer(s)
			if err != nil {
				return err
			}
			filter.Layer = &l
		}
		if s, _ := cmd.Flags().GetString("direction"); s != "" {
			d, err := commands.ParseDirection(s)
			if err != nil {
				return err
			}
			filter.Direction = &d
		}
		if s, _ := cmd.Flags().GetString("category"); s != "" {
			c, err := commands.ParseCategory(s)
			if err != nil {
				return err
			}
			filter.Category = &c
		}
		return commands.RunView(args[0], filter, cmd.OutOrStdout())
	},
}

var traceStatsCmd = &cobra.Command{
	Use:   "stats <file>",
	Short: "Show statistics about a trace file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commands.RunStats(args[0], cmd.OutOrStdout())
	},
}

var traceExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export a trace file to JSON lines or CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		w := cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		return commands.RunExport(args[0], format, w)
	},
}

var traceFilterCmd = &cobra.Command{
	Use:   "filter <file>",
	Short: "Write the matching events of a trace file to a new trace file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		var opts commands.FilterOptions
		opts.Output, _ = f.GetString("output")
		opts.RunID, _ = f.GetString("run-id")
		opts.Subsystem, _ = f.GetString("subsystem")
		opts.TimeStart, _ = f.GetString("time-start")
		opts.TimeEnd, _ = f.GetString("time-end")
		opts.Layer, _ = f.GetString("layer")
		opts.Direction, _ = f.GetString("direction")
		opts.Category, _ = f.GetString("category")

		n, err := commands.RunFilter(args[0], opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d events to %s\n", n, opts.Output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.AddCommand(traceViewCmd, traceStatsCmd, traceExportCmd, traceFilterCmd)

	for _, c := range []*cobra.Command{traceViewCmd, traceFilterCmd} {
		c.Flags().String("subsystem", "", "Filter by subsystem (pressure, door, light)")
		c.Flags().String("layer", "", "Filter by layer (link, subsystem, control)")
		c.Flags().String("direction", "", "Filter by direction (in, out)")
		c.Flags().String("category", "", "Filter by category (frame, transition, emergency, request, error)")
	}

	traceExportCmd.Flags().String("format", "jsonl", "Output format (jsonl, csv)")
	traceExportCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")

	traceFilterCmd.Flags().StringP("output", "o", "", "Output trace file (required)")
	traceFilterCmd.Flags().String("run-id", "", "Filter by run id")
	traceFilterCmd.Flags().String("time-start", "", "Filter by start time (RFC3339)")
	traceFilterCmd.Flags().String("time-end", "", "Filter by end time (RFC3339)")
	_ = traceFilterCmd.MarkFlagRequired("output")
}
