package hosz

import (
	"errors"
	"fmt"
	"time"
)

// Transition failures. Neither is retried automatically: a hard stop clears
// once a safe pre-trip inspection is recorded, an invalid timestamp once the
// caller corrects its clock or input.
var (
	ErrHardStopRequired = errors.New("pre-trip inspection required before driving")
	ErrInvalidTimestamp = errors.New("timestamp precedes the open duty event")
)

// Ledger and store failures.
var (
	ErrDriverNotFound  = errors.New("driver not found")
	ErrEventNotFound   = errors.New("duty event not found")
	ErrAmendOpenEvent  = errors.New("open duty event cannot be amended")
	ErrInvalidLimits   = errors.New("invalid hours-of-service limits")
	ErrInvalidStatus   = errors.New("invalid duty status")
	ErrDriverIDMissing = errors.New("driver id is required")
)

// TransitionError describes a rejected status transition: who asked, for
// which status, at which instant, and what the open event looked like.
type TransitionError struct {
	Timestamp time.Time
	At        time.Time
	OpenSince time.Time
	Err       error
	DriverID  string
	Current   DutyStatus
	Target    DutyStatus
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	if errors.Is(e.Err, ErrInvalidTimestamp) {
		return fmt.Sprintf("driver %q: transition %s -> %s at %s rejected: %v (open since %s)",
			e.DriverID, e.Current, e.Target, e.At.Format(time.RFC3339), e.Err, e.OpenSince.Format(time.RFC3339))
	}
	return fmt.Sprintf("driver %q: transition %s -> %s at %s rejected: %v",
		e.DriverID, e.Current, e.Target, e.At.Format(time.RFC3339), e.Err)
}

// Unwrap returns the underlying error, so errors.Is matches the sentinels.
func (e *TransitionError) Unwrap() error {
	return e.Err
}

// IsHardStop returns true if the transition was blocked by the inspection gate.
func (e *TransitionError) IsHardStop() bool {
	return errors.Is(e.Err, ErrHardStopRequired)
}

// HistoryError reports a duty history that breaks the ordering invariants.
// Pure engine functions panic with it: a malformed history is a bug in the
// persistence layer, not something the engine repairs.
type HistoryError struct {
	DriverID string
	Reason   string
	Index    int
}

// Error implements the error interface.
func (e *HistoryError) Error() string {
	if e.DriverID == "" {
		return fmt.Sprintf("malformed duty history at event %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("malformed duty history for driver %q at event %d: %s", e.DriverID, e.Index, e.Reason)
}
