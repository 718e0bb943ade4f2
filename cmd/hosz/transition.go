package main

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/zoobzio/hosz"
)

func newTransitionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "transition <driver> <status>",
		Aliases: []string{"set"},
		Short:   "Change a driver's duty status",
		Long: `Close the open duty event and open one in the given status.

Statuses: off_duty (off), sleeper_berth (sb), on_duty (on), driving (d).
Driving is refused until a safe pre-trip inspection is recorded for the
current duty cycle.`,
		Args: cobra.ExactArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) != 1 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return []string{"off_duty", "sleeper_berth", "on_duty", "driving"}, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := hosz.ParseDutyStatus(args[1])
			if err != nil {
				return err
			}
			at, err := opts.instant()
			if err != nil {
				return err
			}
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ev, err := a.ledger.Transition(opts.context(cmd), args[0], target, at)
			if errors.Is(err, hosz.ErrHardStopRequired) {
				log.Printf("driver %s: hard stop, record a pre-trip inspection with `hosz inspect`", args[0])
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s since %s (event %s)\n",
				args[0], ev.Status, ev.StartTime.Format(timeLayout), ev.ID)
			return nil
		},
	}
}

const timeLayout = "2006-01-02 15:04 MST"
