package hosz

import (
	"context"
	"time"
)

// PreTripInspection is a driver vehicle inspection report completed before
// a duty cycle's first drive.
type PreTripInspection struct {
	CompletedAt   time.Time `msgpack:"completed_at" json:"completed_at"`
	ID            string    `msgpack:"id" json:"id"`
	DriverID      string    `msgpack:"driver" json:"driver_id"`
	VehicleID     string    `msgpack:"vehicle" json:"vehicle_id"`
	Defects       []string  `msgpack:"defects,omitempty" json:"defects,omitempty"`
	SafeToOperate bool      `msgpack:"safe" json:"safe_to_operate"`
}

// InspectionSource supplies the inspections a driver completed since an
// instant.
type InspectionSource interface {
	Inspections(ctx context.Context, driverID string, since time.Time) ([]PreTripInspection, error)
}

// InspectionRecorder persists completed inspections.
type InspectionRecorder interface {
	RecordInspection(ctx context.Context, inspection PreTripInspection) error
}

// DutyCycleStart returns the instant the inspection gate measures from: the
// start of the latest rest long enough to reset, whether it is ongoing or
// completed. An inspection done during that rest belongs to the cycle that
// follows it. Without any reset the whole history is one cycle and the zero
// time is returned.
func DutyCycleStart(history History, now time.Time, limits HosLimits) time.Time {
	history.mustValidate()

	segs := timeline(history, now)
	rests := runsOf(segs, func(s DutyStatus) bool { return s.IsRest() })
	for i := len(rests) - 1; i >= 0; i-- {
		if rests[i].duration() >= limits.ShiftReset {
			return rests[i].start
		}
	}
	return time.Time{}
}

// RequiresHardStop reports whether driving must be refused: no inspection
// marked safe to operate was completed in the current duty cycle. The gate
// cannot be dismissed; only a new safe inspection clears it.
func RequiresHardStop(history History, now time.Time, inspections []PreTripInspection, limits HosLimits) bool {
	from := DutyCycleStart(history, now, limits)
	for _, in := range inspections {
		if !in.SafeToOperate {
			continue
		}
		if in.CompletedAt.Before(from) || in.CompletedAt.After(now) {
			continue
		}
		return false
	}
	return true
}
