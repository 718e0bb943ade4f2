package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/zoobzio/hosz"
)

func newInspectCmd(opts *options) *cobra.Command {
	var (
		vehicle string
		defects []string
		unsafe  bool
	)
	cmd := &cobra.Command{
		Use:   "inspect <driver>",
		Short: "Record a pre-trip inspection",
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

			in := hosz.PreTripInspection{
				ID:            uuid.NewString(),
				DriverID:      args[0],
				VehicleID:     vehicle,
				CompletedAt:   at,
				Defects:       defects,
				SafeToOperate: !unsafe,
			}
			if err := a.store.RecordInspection(opts.context(cmd), in); err != nil {
				return err
			}
			verdict := "safe to operate"
			if unsafe {
				verdict = "NOT safe to operate"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inspection %s recorded for %s: %s, %d defects\n",
				in.ID, args[0], verdict, len(defects))
			return nil
		},
	}
	cmd.Flags().StringVar(&vehicle, "vehicle", "", "vehicle identifier")
	cmd.Flags().StringArrayVar(&defects, "defect", nil, "defect found (repeatable)")
	cmd.Flags().BoolVar(&unsafe, "unsafe", false, "vehicle is not safe to operate")
	return cmd
}
