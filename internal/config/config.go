// Package config loads hosz runtime settings from HOSZ_* environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/zoobzio/hosz"
)

// Rulesets selectable with HOSZ_RULESET.
const (
	Ruleset70Hour8Day = "70-8"
	Ruleset60Hour7Day = "60-7"
)

// Config is the process configuration. Zero durations keep the value of the
// selected ruleset.
type Config struct {
	StorePath string `env:"STORE_PATH" envDefault:"hosz.db"`
	Ruleset   string `env:"RULESET" envDefault:"70-8"`

	MaxDriving    time.Duration `env:"MAX_DRIVING"`
	MaxWindow     time.Duration `env:"MAX_WINDOW"`
	BreakAfter    time.Duration `env:"BREAK_AFTER"`
	ShiftReset    time.Duration `env:"SHIFT_RESET"`
	CycleRestart  time.Duration `env:"CYCLE_RESTART"`
	DocumentLead  time.Duration `env:"DOCUMENT_LEAD"`
	DrivingMargin time.Duration `env:"WARN_DRIVING"`
	WindowMargin  time.Duration `env:"WARN_WINDOW"`
	BreakMargin   time.Duration `env:"WARN_BREAK"`
	CycleMargin   time.Duration `env:"WARN_CYCLE"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Limits(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Limits resolves the ruleset and applies the overrides.
func (c Config) Limits() (hosz.HosLimits, error) {
	var limits hosz.HosLimits
	switch strings.TrimSpace(c.Ruleset) {
	case "", Ruleset70Hour8Day:
		limits = hosz.Property70Hour8Day()
	case Ruleset60Hour7Day:
		limits = hosz.Property60Hour7Day()
	default:
		return hosz.HosLimits{}, fmt.Errorf("unknown ruleset %q: want %s or %s", c.Ruleset, Ruleset70Hour8Day, Ruleset60Hour7Day)
	}

	override(&limits.MaxDrivingPerShift, c.MaxDriving)
	override(&limits.MaxOnDutyWindow, c.MaxWindow)
	override(&limits.BreakRequiredAfter, c.BreakAfter)
	override(&limits.ShiftReset, c.ShiftReset)
	override(&limits.CycleRestart, c.CycleRestart)
	override(&limits.DocumentLeadTime, c.DocumentLead)
	override(&limits.DrivingWarningMargin, c.DrivingMargin)
	override(&limits.WindowWarningMargin, c.WindowMargin)
	override(&limits.BreakWarningMargin, c.BreakMargin)
	override(&limits.CycleWarningMargin, c.CycleMargin)

	if err := limits.Validate(); err != nil {
		return hosz.HosLimits{}, err
	}
	return limits, nil
}

func override(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
