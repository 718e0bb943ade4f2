package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zoobzio/hosz"
	"github.com/zoobzio/hosz/internal/config"
)

func newEnrollCmd(opts *options) *cobra.Command {
	var (
		ruleset        string
		medicalExpires string
		licenseExpires string
		licenseNumber  string
	)
	cmd := &cobra.Command{
		Use:   "enroll <driver>",
		Short: "Register a driver's ruleset and documents",
		Long: `Register a driver. A driver without a log starts off duty at --at.
Running enroll again updates the ruleset and documents and keeps the log.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			at, err := opts.instant()
			if err != nil {
				return err
			}
			limits := a.limits
			if ruleset != "" {
				cfg := a.cfg
				cfg.Ruleset = ruleset
				if limits, err = cfg.Limits(); err != nil {
					return err
				}
			}

			var docs hosz.DocumentState
			if medicalExpires != "" {
				exp, err := parseDate(medicalExpires)
				if err != nil {
					return fmt.Errorf("invalid --medical-expires: %w", err)
				}
				docs = docs.With(hosz.Document{Kind: hosz.MedicalCertificate, ExpiresAt: exp})
			}
			if licenseExpires != "" {
				exp, err := parseDate(licenseExpires)
				if err != nil {
					return fmt.Errorf("invalid --license-expires: %w", err)
				}
				docs = docs.With(hosz.Document{Kind: hosz.License, ExpiresAt: exp, Number: licenseNumber})
			}

			snap, err := a.ledger.Enroll(opts.context(cmd), args[0], at, limits, docs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enrolled %s: %s, %d events on log\n",
				snap.DriverID, rulesetLabel(snap.Limits), len(snap.Events))
			return nil
		},
	}
	cmd.Flags().StringVar(&ruleset, "ruleset", "", "70-8 or 60-7 (default HOSZ_RULESET)")
	cmd.Flags().StringVar(&medicalExpires, "medical-expires", "", "medical certificate expiry date")
	cmd.Flags().StringVar(&licenseExpires, "license-expires", "", "license expiry date")
	cmd.Flags().StringVar(&licenseNumber, "license-number", "", "license number")
	return cmd
}

func rulesetLabel(l hosz.HosLimits) string {
	switch l.CycleDays {
	case 7:
		return config.Ruleset60Hour7Day
	default:
		return config.Ruleset70Hour8Day
	}
}
