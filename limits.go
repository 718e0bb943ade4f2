package hosz

import (
	"fmt"
	"time"
)

// Day is the length of a calendar day used by the cycle lookback.
const Day = 24 * time.Hour

// HosLimits holds the rule thresholds the engine evaluates against.
type HosLimits struct {
	MaxDrivingPerShift    time.Duration `msgpack:"max_driving" json:"max_driving_per_shift"`
	MaxOnDutyWindow       time.Duration `msgpack:"max_window" json:"max_on_duty_window"`
	BreakRequiredAfter    time.Duration `msgpack:"break_after" json:"break_required_after"`
	MaxCycleHours         time.Duration `msgpack:"max_cycle" json:"max_cycle_hours"`
	ShiftReset            time.Duration `msgpack:"shift_reset" json:"shift_reset"`
	BreakMinimum          time.Duration `msgpack:"break_min" json:"break_minimum"`
	CycleRestart          time.Duration `msgpack:"cycle_restart" json:"cycle_restart"`
	SplitSleeperMinimum   time.Duration `msgpack:"split_sleeper" json:"split_sleeper_minimum"`
	SplitCompanionMinimum time.Duration `msgpack:"split_companion" json:"split_companion_minimum"`
	DrivingWarningMargin  time.Duration `msgpack:"warn_driving" json:"driving_warning_margin"`
	WindowWarningMargin   time.Duration `msgpack:"warn_window" json:"window_warning_margin"`
	BreakWarningMargin    time.Duration `msgpack:"warn_break" json:"break_warning_margin"`
	CycleWarningMargin    time.Duration `msgpack:"warn_cycle" json:"cycle_warning_margin"`
	DocumentLeadTime      time.Duration `msgpack:"doc_lead" json:"document_lead_time"`
	CycleDays             int           `msgpack:"cycle_days" json:"cycle_days"`
}

// Property70Hour8Day returns the property-carrying limits for carriers
// operating every day of the week.
func Property70Hour8Day() HosLimits {
	return HosLimits{
		MaxDrivingPerShift:    11 * time.Hour,
		MaxOnDutyWindow:       14 * time.Hour,
		BreakRequiredAfter:    8 * time.Hour,
		MaxCycleHours:         70 * time.Hour,
		CycleDays:             8,
		ShiftReset:            10 * time.Hour,
		BreakMinimum:          30 * time.Minute,
		CycleRestart:          34 * time.Hour,
		SplitSleeperMinimum:   7 * time.Hour,
		SplitCompanionMinimum: 2 * time.Hour,
		DrivingWarningMargin:  time.Hour,
		WindowWarningMargin:   time.Hour,
		BreakWarningMargin:    15 * time.Minute,
		CycleWarningMargin:    time.Hour,
		DocumentLeadTime:      30 * Day,
	}
}

// Property60Hour7Day returns the property-carrying limits for carriers that
// do not operate every day of the week.
func Property60Hour7Day() HosLimits {
	l := Property70Hour8Day()
	l.MaxCycleHours = 60 * time.Hour
	l.CycleDays = 7
	return l
}

// DefaultLimits returns the limits used when a driver has none configured.
func DefaultLimits() HosLimits {
	return Property70Hour8Day()
}

// CycleWindow is the rolling lookback of the cycle limit.
func (l HosLimits) CycleWindow() time.Duration {
	return time.Duration(l.CycleDays) * Day
}

// Retention is how far back a history must reach for every counter to be
// computed exactly. Older events can be paged out of working snapshots.
func (l HosLimits) Retention() time.Duration {
	return l.CycleWindow() + l.CycleRestart
}

// IsZero reports whether no limits were configured.
func (l HosLimits) IsZero() bool {
	return l == HosLimits{}
}

// Validate rejects non-positive thresholds and warning margins that are as
// large as the limit they warn about.
func (l HosLimits) Validate() error {
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"max driving per shift", l.MaxDrivingPerShift},
		{"max on-duty window", l.MaxOnDutyWindow},
		{"break required after", l.BreakRequiredAfter},
		{"max cycle hours", l.MaxCycleHours},
		{"shift reset", l.ShiftReset},
		{"break minimum", l.BreakMinimum},
		{"cycle restart", l.CycleRestart},
		{"split sleeper minimum", l.SplitSleeperMinimum},
		{"split companion minimum", l.SplitCompanionMinimum},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidLimits, p.name, p.d)
		}
	}
	if l.CycleDays <= 0 {
		return fmt.Errorf("%w: cycle days must be positive, got %d", ErrInvalidLimits, l.CycleDays)
	}
	margins := []struct {
		name   string
		margin time.Duration
		limit  time.Duration
	}{
		{"driving warning margin", l.DrivingWarningMargin, l.MaxDrivingPerShift},
		{"window warning margin", l.WindowWarningMargin, l.MaxOnDutyWindow},
		{"break warning margin", l.BreakWarningMargin, l.BreakRequiredAfter},
		{"cycle warning margin", l.CycleWarningMargin, l.MaxCycleHours},
	}
	for _, m := range margins {
		if m.margin < 0 || m.margin >= m.limit {
			return fmt.Errorf("%w: %s %v must be in [0, %v)", ErrInvalidLimits, m.name, m.margin, m.limit)
		}
	}
	if l.DocumentLeadTime < 0 {
		return fmt.Errorf("%w: document lead time must not be negative", ErrInvalidLimits)
	}
	return nil
}
