package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zoobzio/hosz"
)

func newHistoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history <driver>",
		Short: "List the duty events of the working window",
		Long: `List the duty events the rules look at, with amendments applied.
Amended events show the recorded status in brackets.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			now, err := opts.instant()
			if err != nil {
				return err
			}
			snap, err := a.ledger.SnapshotAt(opts.context(cmd), args[0], now)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tSTART\tEND\tDURATION")
			effective := snap.Effective()
			for i, ev := range effective {
				status := ev.Status.String()
				if recorded := snap.Events[i].Status; recorded != ev.Status {
					status = fmt.Sprintf("%s [%s]", ev.Status, recorded)
				}
				end := "open"
				if !ev.IsOpen() {
					end = ev.EndTime.Format(timeLayout)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					ev.ID, status, ev.StartTime.Format(timeLayout), end, hosz.FormatRemaining(ev.Duration(now)))
			}
			return tw.Flush()
		},
	}
}
