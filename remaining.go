package hosz

import (
	"time"

	"github.com/hako/durafmt"
)

// BreakDue answers how long a driver may keep driving before the 30-minute
// break. Now is set when nothing remains and the driver is driving: the
// break is overdue, not merely due at the next stop.
type BreakDue struct {
	Remaining time.Duration `json:"remaining"`
	Now       bool          `json:"now"`
}

// String renders the value for presentation.
func (b BreakDue) String() string {
	if b.Now {
		return "now"
	}
	return FormatRemaining(b.Remaining)
}

// DrivingTimeRemaining is the driving time left in the current shift. It
// bottoms out at zero; exceeding the limit is reported by EvaluateCompliance.
func DrivingTimeRemaining(c HosCounters, l HosLimits) time.Duration {
	return remaining(l.MaxDrivingPerShift, c.DrivingToday)
}

// BreakRequiredIn is the driving time left before a break is required.
func BreakRequiredIn(c HosCounters, l HosLimits) BreakDue {
	left := remaining(l.BreakRequiredAfter, c.DrivingSinceBreak)
	return BreakDue{
		Remaining: left,
		Now:       left == 0 && c.CurrentStatus == Driving,
	}
}

// OnDutyWindowRemaining is the time left in the 14-hour window.
func OnDutyWindowRemaining(c HosCounters, l HosLimits) time.Duration {
	return remaining(l.MaxOnDutyWindow, c.OnDutyToday)
}

// CycleRemaining is the on-duty time left in the rolling cycle.
func CycleRemaining(c HosCounters, l HosLimits) time.Duration {
	return remaining(l.MaxCycleHours, c.CycleWeek)
}

func remaining(limit, used time.Duration) time.Duration {
	if used >= limit {
		return 0
	}
	return limit - used
}

// FormatRemaining renders a duration at minute precision, e.g.
// "2 hours 15 minutes". Zero renders as "0 minutes".
func FormatRemaining(d time.Duration) string {
	d = d.Truncate(time.Minute)
	if d <= 0 {
		return "0 minutes"
	}
	return durafmt.Parse(d).String()
}
