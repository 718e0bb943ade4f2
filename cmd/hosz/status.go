package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zoobzio/hosz"
)

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

func newStatusCmd(opts *options) *cobra.Command {
	var (
		asJSON  bool
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "status <driver>",
		Short: "Show remaining hours and compliance issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := opts.instant()
			if err != nil {
				return err
			}
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.ledger.EvaluateAt(opts.context(cmd), args[0], at)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(cmd.OutOrStdout(), report, !noColor)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}

func printReport(w io.Writer, r hosz.Report, color bool) {
	paint := func(c, s string) string {
		if !color {
			return s
		}
		return c + s + colorReset
	}
	statusColor := colorGreen
	switch r.Status {
	case hosz.StatusWarning:
		statusColor = colorYellow
	case hosz.StatusViolation:
		statusColor = colorRed
	}

	fmt.Fprintf(w, "driver   %s\n", r.DriverID)
	fmt.Fprintf(w, "status   %s (%s)\n", r.Counters.CurrentStatus, paint(statusColor, r.Status.String()))
	fmt.Fprintf(w, "driving  %s left\n", r.Text.Driving)
	if r.BreakDue.Now {
		fmt.Fprintf(w, "break    %s\n", paint(colorRed, r.Text.Break))
	} else {
		fmt.Fprintf(w, "break    %s left\n", r.Text.Break)
	}
	fmt.Fprintf(w, "window   %s left\n", r.Text.Window)
	fmt.Fprintf(w, "cycle    %s left\n", r.Text.Cycle)
	if r.HardStop {
		fmt.Fprintf(w, "%s\n", paint(colorRed, "pre-trip inspection required before driving"))
	}
	for _, issue := range r.Issues {
		c := colorYellow
		if issue.Kind == hosz.IssueViolation {
			c = colorRed
		}
		fmt.Fprintf(w, "  %s [%s] %s\n", paint(c, issue.Kind.String()), issue.RuleID, issue.Message)
	}
}
