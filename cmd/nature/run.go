package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/wonhochoi1/nature"
	"github.com/wonhochoi1/nature/internal/document"
	"github.com/wonhochoi1/nature/internal/engine"
	"github.com/wonhochoi1/nature/internal/engine/ir"
)

func newRunCmd() *cobra.Command {
	var emitIR bool
	cmd := &cobra.Command{
		Use:   "run <document>",
		Short: "Run a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, hasExt, err := document.Load(args[0])
			if err != nil {
				return err
			}
			if !hasExt {
				nature.Logger.Warn().Str("file", args[0]).Msgf("It is recommended to use a '%s' extension for natural language files", document.Extension)
			}

			runner, cleanup, err := buildRunner(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := runner.Run(cmd.Context(), defs)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report, emitIR)
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d functions failed", report.Failed, len(report.Functions))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&emitIR, "emit-ir", false, "print the validated IR of every function")
	return cmd
}

func printReport(w io.Writer, report *engine.RunReport, emitIR bool) {
	if len(report.Displayed) > 0 {
		fmt.Fprintln(w, "--- Output ---")
		for _, line := range report.Displayed {
			fmt.Fprintln(w, line)
		}
	}

	fmt.Fprintln(w, "--- Functions ---")
	for _, f := range report.Functions {
		switch f.State {
		case engine.StateSucceeded:
			fmt.Fprintf(w, "%s: succeeded (attempts: %d, source: %s) => %s\n", f.Name, f.Attempts, f.Source, engine.FormatValue(f.Value))
		default:
			fmt.Fprintf(w, "%s: failed (attempts: %d): %v\n", f.Name, f.Attempts, f.Err)
			fmt.Fprintf(w, "  diagnostic: %s\n", indent(f.Diagnostic))
			fmt.Fprintf(w, "  suggestion: %s\n", f.Suggestion)
		}
		if emitIR && f.Graph != nil {
			if data, err := ir.Encode(f.Graph); err == nil {
				fmt.Fprintf(w, "  ir: %s\n", data)
			}
		}
	}
	fmt.Fprintf(w, "--- %d succeeded, %d failed in %s (run %s) ---\n", report.Succeeded, report.Failed, report.Duration.Round(time.Millisecond), report.RunID)
}

func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n    ")
}
