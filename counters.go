package hosz

import (
	"time"
)

// HosCounters are the hour counters derived from a duty history at one
// instant. They are never stored; recompute them whenever the history
// changes or the clock moves.
type HosCounters struct {
	EvaluatedAt       time.Time     `json:"evaluated_at"`
	ShiftStart        time.Time     `json:"shift_start"`
	CycleStart        time.Time     `json:"cycle_start"`
	LastBreakEnd      time.Time     `json:"last_break_end,omitempty"`
	DrivingToday      time.Duration `json:"driving_today"`
	OnDutyToday       time.Duration `json:"on_duty_today"`
	DrivingSinceBreak time.Duration `json:"driving_since_break"`
	CycleWeek         time.Duration `json:"cycle_week"`
	CurrentStatus     DutyStatus    `json:"current_status"`
}

// Hours converts a counter to fractional hours.
func Hours(d time.Duration) float64 {
	return d.Hours()
}

// segment is a span of the timeline spent in one status. Gaps between
// recorded events are filled with off-duty segments.
type segment struct {
	start  time.Time
	end    time.Time
	status DutyStatus
}

func (s segment) duration() time.Duration {
	return s.end.Sub(s.start)
}

// run is a maximal stretch of contiguous segments sharing a property.
// berth is the longest unbroken sleeper-berth stretch inside it.
type run struct {
	start  time.Time
	end    time.Time
	berth  time.Duration
	streak time.Duration
}

func (r *run) extend(s segment) {
	r.end = s.end
	if s.status != SleeperBerth {
		r.streak = 0
		return
	}
	r.streak += s.duration()
	if r.streak > r.berth {
		r.berth = r.streak
	}
}

func (r run) duration() time.Duration {
	return r.end.Sub(r.start)
}

// ComputeCounters derives the hour counters of a history at now. The history
// must satisfy History.Validate; a malformed history panics with a
// *HistoryError. Events starting after now are ignored.
func ComputeCounters(history History, now time.Time, limits HosLimits) HosCounters {
	history.mustValidate()

	segs := timeline(history, now)
	c := HosCounters{
		EvaluatedAt:   now,
		CurrentStatus: currentAt(history, now),
	}

	rests := runsOf(segs, func(s DutyStatus) bool { return s.IsRest() })

	// Shift boundary: end of the latest rest long enough to reset.
	c.ShiftStart = now
	if len(segs) > 0 {
		c.ShiftStart = segs[0].start
	}
	for i := len(rests) - 1; i >= 0; i-- {
		if rests[i].duration() >= limits.ShiftReset {
			c.ShiftStart = rests[i].end
			break
		}
	}

	var excluded *run
	if pair, ok := splitPair(rests, c.ShiftStart, limits); ok {
		c.ShiftStart = pair[0].end
		excluded = &pair[1]
	}

	c.DrivingToday = sumWithin(segs, c.ShiftStart, now, isDriving)
	c.OnDutyToday = sumWithin(segs, c.ShiftStart, now, func(s DutyStatus) bool { return s != OffDuty })
	if excluded != nil {
		c.OnDutyToday -= sumWithin(segs, excluded.start, excluded.end, func(s DutyStatus) bool { return s != OffDuty })
	}

	breakFrom := c.ShiftStart
	breaks := runsOf(segs, func(s DutyStatus) bool { return s != Driving })
	for i := len(breaks) - 1; i >= 0; i-- {
		if breaks[i].duration() >= limits.BreakMinimum {
			c.LastBreakEnd = breaks[i].end
			if c.LastBreakEnd.After(breakFrom) {
				breakFrom = c.LastBreakEnd
			}
			break
		}
	}
	c.DrivingSinceBreak = sumWithin(segs, breakFrom, now, isDriving)

	c.CycleStart = now.Add(-limits.CycleWindow())
	for i := len(rests) - 1; i >= 0; i-- {
		if rests[i].duration() >= limits.CycleRestart {
			if rests[i].end.After(c.CycleStart) {
				c.CycleStart = rests[i].end
			}
			break
		}
	}
	c.CycleWeek = sumWithin(segs, c.CycleStart, now, DutyStatus.IsOnDuty)

	return c
}

func isDriving(s DutyStatus) bool {
	return s == Driving
}

// currentAt is the status in effect at now.
func currentAt(history History, now time.Time) DutyStatus {
	for i := len(history) - 1; i >= 0; i-- {
		ev := history[i]
		if ev.StartTime.After(now) {
			continue
		}
		if ev.End(now).After(now) || ev.IsOpen() {
			return ev.Status
		}
		return OffDuty
	}
	return OffDuty
}

// timeline clips the history to now and fills gaps with off-duty time.
func timeline(history History, now time.Time) []segment {
	segs := make([]segment, 0, len(history)+1)
	for _, ev := range history {
		if !ev.StartTime.Before(now) {
			break
		}
		end := ev.End(now)
		if end.After(now) {
			end = now
		}
		if n := len(segs); n > 0 && segs[n-1].end.Before(ev.StartTime) {
			segs = append(segs, segment{start: segs[n-1].end, end: ev.StartTime, status: OffDuty})
		}
		segs = append(segs, segment{start: ev.StartTime, end: end, status: ev.Status})
	}
	// A closed final event means the driver went off the log; the remainder
	// up to now is rest.
	if n := len(segs); n > 0 && segs[n-1].end.Before(now) {
		segs = append(segs, segment{start: segs[n-1].end, end: now, status: OffDuty})
	}
	return segs
}

// runsOf groups contiguous segments matching pred into runs.
func runsOf(segs []segment, pred func(DutyStatus) bool) []run {
	var runs []run
	open := false
	for _, s := range segs {
		if !pred(s.status) {
			open = false
			continue
		}
		if s.duration() == 0 && !open {
			continue
		}
		if !open {
			runs = append(runs, run{start: s.start})
			open = true
		}
		runs[len(runs)-1].extend(s)
	}
	return runs
}

// splitPair finds the latest pair of consecutive qualifying rest periods
// after the shift boundary that together satisfy the sleeper-berth split:
// one period holding at least SplitSleeperMinimum of consecutive berth
// time, the other at least SplitCompanionMinimum, summing to at least
// ShiftReset.
func splitPair(rests []run, shiftStart time.Time, limits HosLimits) ([2]run, bool) {
	var candidates []run
	for _, r := range rests {
		if r.start.Before(shiftStart) {
			continue
		}
		if r.duration() >= limits.SplitCompanionMinimum {
			candidates = append(candidates, r)
		}
	}
	for i := len(candidates) - 2; i >= 0; i-- {
		a, b := candidates[i], candidates[i+1]
		if a.duration()+b.duration() < limits.ShiftReset {
			continue
		}
		if qualifiesAsBerth(a, limits) || qualifiesAsBerth(b, limits) {
			return [2]run{a, b}, true
		}
	}
	return [2]run{}, false
}

func qualifiesAsBerth(r run, limits HosLimits) bool {
	return r.berth >= limits.SplitSleeperMinimum
}

// sumWithin totals the time of matching segments that falls in [from, to).
func sumWithin(segs []segment, from, to time.Time, pred func(DutyStatus) bool) time.Duration {
	var total time.Duration
	for _, s := range segs {
		if !pred(s.status) {
			continue
		}
		start, end := s.start, s.end
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		if end.After(start) {
			total += end.Sub(start)
		}
	}
	return total
}
