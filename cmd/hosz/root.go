package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hosz"
	"github.com/zoobzio/hosz/internal/config"
	"github.com/zoobzio/hosz/sqlite"
)

// options are shared by every subcommand.
type options struct {
	clock     clockz.Clock
	storePath string
	at        string
}

func newRootCmd() *cobra.Command {
	opts := &options{clock: clockz.RealClock}
	root := &cobra.Command{
		Use:   "hosz",
		Short: "Hours-of-service duty log and compliance checks",
		Long: `hosz keeps a driver's duty-status log and evaluates it against the
FMCSA property-carrying hours-of-service rules.

Settings are read from HOSZ_* environment variables:
  HOSZ_STORE_PATH  SQLite file holding the log (default hosz.db)
  HOSZ_RULESET     70-8 or 60-7 (default 70-8)`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&opts.storePath, "store", "", "SQLite file (overrides HOSZ_STORE_PATH)")
	root.PersistentFlags().StringVar(&opts.at, "at", "", "instant to act at, RFC 3339 (default now)")

	root.AddCommand(
		newEnrollCmd(opts),
		newTransitionCmd(opts),
		newInspectCmd(opts),
		newStatusCmd(opts),
		newHistoryCmd(opts),
		newAmendCmd(opts),
	)
	return root
}

// app is an open store and the ledger writing to it.
type app struct {
	store  *sqlite.Store
	ledger *hosz.Ledger
	cfg    config.Config
	limits hosz.HosLimits
}

func (o *options) open() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.storePath != "" {
		cfg.StorePath = o.storePath
	}
	limits, err := cfg.Limits()
	if err != nil {
		return nil, err
	}
	store, err := sqlite.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}
	ledger := hosz.NewLedger(store, store).WithClock(o.clock).WithLimits(limits)
	return &app{store: store, ledger: ledger, cfg: cfg, limits: limits}, nil
}

func (a *app) Close() {
	_ = a.ledger.Close()
	_ = a.store.Close()
}

// instant resolves --at against the clock.
func (o *options) instant() (time.Time, error) {
	if strings.TrimSpace(o.at) == "" {
		return o.clock.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, o.at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: %w", o.at, err)
	}
	return t, nil
}

func (o *options) context(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// parseDate accepts a calendar date or an RFC 3339 instant.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
