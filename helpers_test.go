package hosz

import (
	"time"
)

var day0 = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

// at returns day0 shifted by h hours and m minutes. Negative hours reach
// into the previous day.
func at(h, m int) time.Time {
	return day0.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

type span struct {
	d      time.Duration
	status DutyStatus
}

func s(status DutyStatus, d time.Duration) span {
	return span{status: status, d: d}
}

// closed builds contiguous closed events from start.
func closed(start time.Time, spans ...span) History {
	h := make(History, 0, len(spans))
	cursor := start
	for i, sp := range spans {
		end := cursor.Add(sp.d)
		h = append(h, DutyStatusEvent{
			ID:        eventID(i),
			DriverID:  "d1",
			Status:    sp.status,
			StartTime: cursor,
			EndTime:   &end,
		})
		cursor = end
	}
	return h
}

// open builds contiguous events from start and leaves a final event of
// status open.
func open(start time.Time, status DutyStatus, spans ...span) History {
	h := closed(start, spans...)
	cursor := start
	if n := len(h); n > 0 {
		cursor = *h[n-1].EndTime
	}
	return append(h, DutyStatusEvent{
		ID:        eventID(len(h)),
		DriverID:  "d1",
		Status:    status,
		StartTime: cursor,
	})
}

func eventID(i int) string {
	return "e" + string(rune('a'+i))
}

func ptrTime(t time.Time) *time.Time { return &t }
