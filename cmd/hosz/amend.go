package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zoobzio/hosz"
)

func newAmendCmd(opts *options) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "amend <driver> <event-id> <status>",
		Short: "Correct the status of a closed duty event",
		Long: `Record an amendment. The original event stays on the log; reports use
the amended status.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := hosz.ParseDutyStatus(args[2])
			if err != nil {
				return err
			}
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			am, err := a.ledger.Amend(opts.context(cmd), args[0], args[1], status, note)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "amendment %s: event %s is now %s\n", am.ID, am.EventID, am.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "reason for the correction")
	return cmd
}
