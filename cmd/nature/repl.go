package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wonhochoi1/nature/internal/document"
	"github.com/wonhochoi1/nature/internal/engine"
)

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Type a document interactively and run it",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, cleanup, err := buildRunner(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			return repl(cmd.Context(), runner, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// repl reads document lines until "run" (or end of input), runs them and
// walks the operator through the failures.
func repl(ctx context.Context, runner *engine.Runner, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	fmt.Fprintln(out, "Enter your natural language instructions. Use 'function:' to start a function block,")
	fmt.Fprintln(out, "and type 'run' (on a new line) to execute.")

	var lines []string
	for {
		fmt.Fprint(out, ">> ")
		line, err := reader.ReadString('\n')
		if strings.EqualFold(strings.TrimSpace(line), "run") {
			break
		}
		if line != "" {
			lines = append(lines, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			break
		}
	}
	fmt.Fprintln(out)

	defs := document.Parse(strings.Join(lines, "\n"))
	report, err := runner.Run(ctx, defs)
	if err != nil {
		return err
	}
	printReport(out, report, false)
	debug(reader, out, report)
	return nil
}

// debug offers the suggestion of every failed function, one at a time.
func debug(reader *bufio.Reader, out io.Writer, report *engine.RunReport) {
	if report.Failed == 0 {
		return
	}
	if !confirm(reader, out, "Would you like to see further suggestions? (y/n): ") {
		return
	}
	for _, f := range report.Functions {
		if f.State != engine.StateFailed {
			continue
		}
		fmt.Fprintf(out, "\n%s failed after %d attempt(s)\n", f.Name, f.Attempts)
		fmt.Fprintf(out, "Error: %s\n", f.Diagnostic)
		fmt.Fprintf(out, "Suggestion: %s\n", f.Suggestion)
		if !confirm(reader, out, "Continue with the next failure? (y/n): ") {
			return
		}
	}
}

func confirm(reader *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
