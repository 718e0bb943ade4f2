package hosz

import (
	"time"
)

// Report is what a presentation layer renders for a driver at one instant.
type Report struct {
	Counters         HosCounters       `json:"counters"`
	DriverID         string            `json:"driver_id"`
	Issues           []ComplianceIssue `json:"issues"`
	Text             RemainingText     `json:"text"`
	BreakDue         BreakDue          `json:"break_due"`
	DrivingRemaining time.Duration     `json:"driving_remaining"`
	WindowRemaining  time.Duration     `json:"window_remaining"`
	CycleRemaining   time.Duration     `json:"cycle_remaining"`
	Status           ComplianceStatus  `json:"status"`
	HardStop         bool              `json:"hard_stop"`
}

// RemainingText holds the remaining times formatted for display.
type RemainingText struct {
	Driving string `json:"driving"`
	Break   string `json:"break"`
	Window  string `json:"window"`
	Cycle   string `json:"cycle"`
}

// NewReport evaluates a snapshot at now. inspections are the driver's
// inspections for the current duty cycle; a nil evaluator runs the default
// rules.
func NewReport(snap Snapshot, inspections []PreTripInspection, now time.Time, evaluator *Evaluator) Report {
	if evaluator == nil {
		evaluator = defaultEvaluator
	}
	history := snap.Effective()
	limits := snap.EffectiveLimits()
	counters := ComputeCounters(history, now, limits)
	issues := evaluator.Evaluate(Evaluation{
		Counters:  counters,
		Limits:    limits,
		Documents: snap.Documents,
	})

	r := Report{
		DriverID:         snap.DriverID,
		Counters:         counters,
		Issues:           issues,
		Status:           OverallStatus(issues),
		DrivingRemaining: DrivingTimeRemaining(counters, limits),
		WindowRemaining:  OnDutyWindowRemaining(counters, limits),
		CycleRemaining:   CycleRemaining(counters, limits),
		BreakDue:         BreakRequiredIn(counters, limits),
		HardStop:         RequiresHardStop(history, now, inspections, limits),
	}
	r.Text = RemainingText{
		Driving: FormatRemaining(r.DrivingRemaining),
		Break:   r.BreakDue.String(),
		Window:  FormatRemaining(r.WindowRemaining),
		Cycle:   FormatRemaining(r.CycleRemaining),
	}
	return r
}
