package hosz

import (
	"slices"
	"time"
)

// DutyStatusEvent is an immutable record of a status transition. EndTime is
// nil while the event is ongoing.
type DutyStatusEvent struct {
	StartTime time.Time  `msgpack:"start" json:"start_time"`
	EndTime   *time.Time `msgpack:"end,omitempty" json:"end_time,omitempty"`
	ID        string     `msgpack:"id" json:"id"`
	DriverID  string     `msgpack:"driver" json:"driver_id"`
	Status    DutyStatus `msgpack:"status" json:"status"`
}

// IsOpen reports whether the event is the driver's current status.
func (e DutyStatusEvent) IsOpen() bool {
	return e.EndTime == nil
}

// End returns the end of the event, or now when it is still open.
func (e DutyStatusEvent) End(now time.Time) time.Time {
	if e.EndTime == nil {
		return now
	}
	return *e.EndTime
}

// Duration returns the event duration measured up to now.
func (e DutyStatusEvent) Duration(now time.Time) time.Duration {
	d := e.End(now).Sub(e.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// History is a driver's duty history ordered ascending by StartTime.
type History []DutyStatusEvent

// Validate checks the history invariants: events sorted by start time, no
// overlaps, no event ending before it starts, and at most one open event,
// which must be the last.
func (h History) Validate() error {
	for i, ev := range h {
		if !ev.Status.Valid() {
			return &HistoryError{DriverID: ev.DriverID, Index: i, Reason: "invalid status"}
		}
		if ev.EndTime != nil && ev.EndTime.Before(ev.StartTime) {
			return &HistoryError{DriverID: ev.DriverID, Index: i, Reason: "event ends before it starts"}
		}
		if ev.EndTime == nil && i != len(h)-1 {
			return &HistoryError{DriverID: ev.DriverID, Index: i, Reason: "open event is not the most recent"}
		}
		if i == 0 {
			continue
		}
		prev := h[i-1]
		if ev.StartTime.Before(prev.StartTime) {
			return &HistoryError{DriverID: ev.DriverID, Index: i, Reason: "events out of order"}
		}
		if prev.EndTime != nil && ev.StartTime.Before(*prev.EndTime) {
			return &HistoryError{DriverID: ev.DriverID, Index: i, Reason: "events overlap"}
		}
	}
	return nil
}

// mustValidate panics on a malformed history.
func (h History) mustValidate() {
	if err := h.Validate(); err != nil {
		panic(err)
	}
}

// Open returns the open event, if any.
func (h History) Open() (DutyStatusEvent, bool) {
	if len(h) == 0 || !h[len(h)-1].IsOpen() {
		return DutyStatusEvent{}, false
	}
	return h[len(h)-1], true
}

// Current returns the status the driver is in. A driver with no history, or
// whose last event was closed without a successor, is off duty.
func (h History) Current() DutyStatus {
	if ev, ok := h.Open(); ok {
		return ev.Status
	}
	return OffDuty
}

// Clone returns a deep copy of the history.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	for i, ev := range h {
		if ev.EndTime != nil {
			end := *ev.EndTime
			ev.EndTime = &end
		}
		out[i] = ev
	}
	return out
}

// Since returns the events that are open or ended at or after cutoff. The
// result shares no memory with h.
func (h History) Since(cutoff time.Time) History {
	i := slices.IndexFunc(h, func(ev DutyStatusEvent) bool {
		return ev.EndTime == nil || !ev.EndTime.Before(cutoff)
	})
	if i < 0 {
		return History{}
	}
	return h[i:].Clone()
}

// Find returns the index of the event with the given id, or -1.
func (h History) Find(id string) int {
	return slices.IndexFunc(h, func(ev DutyStatusEvent) bool { return ev.ID == id })
}

// Amendment corrects the status of a recorded event. The original event is
// kept untouched; readers apply amendments to obtain the effective history.
type Amendment struct {
	RecordedAt time.Time  `msgpack:"recorded_at" json:"recorded_at"`
	ID         string     `msgpack:"id" json:"id"`
	EventID    string     `msgpack:"event" json:"event_id"`
	Note       string     `msgpack:"note,omitempty" json:"note,omitempty"`
	Status     DutyStatus `msgpack:"status" json:"status"`
}

// ApplyAmendments returns the effective history: a copy of h with each
// amended event carrying the status of its most recently recorded amendment.
func ApplyAmendments(h History, amendments []Amendment) History {
	out := h.Clone()
	if len(amendments) == 0 {
		return out
	}
	latest := make(map[string]Amendment, len(amendments))
	for _, a := range amendments {
		if cur, ok := latest[a.EventID]; !ok || !a.RecordedAt.Before(cur.RecordedAt) {
			latest[a.EventID] = a
		}
	}
	for i := range out {
		if a, ok := latest[out[i].ID]; ok {
			out[i].Status = a.Status
		}
	}
	return out
}
