package hosz

import (
	"fmt"
	"strings"
)

// DutyStatus is the duty status a driver is logged in. Exactly one status is
// active per driver at any instant.
type DutyStatus uint8

// Duty statuses. The zero value is OffDuty, which is also the initial status
// of every newly enrolled driver.
const (
	OffDuty DutyStatus = iota
	SleeperBerth
	OnDutyNotDriving
	Driving
)

var statusNames = [...]string{
	OffDuty:          "off_duty",
	SleeperBerth:     "sleeper_berth",
	OnDutyNotDriving: "on_duty",
	Driving:          "driving",
}

// String returns the canonical text form of the status.
func (s DutyStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("DutyStatus(%d)", uint8(s))
}

// Valid reports whether s is one of the four defined statuses.
func (s DutyStatus) Valid() bool {
	return s <= Driving
}

// IsOnDuty reports whether time in this status counts as on-duty time.
func (s DutyStatus) IsOnDuty() bool {
	return s == Driving || s == OnDutyNotDriving
}

// IsRest reports whether time in this status can contribute to a reset.
func (s DutyStatus) IsRest() bool {
	return s == OffDuty || s == SleeperBerth
}

// MarshalText implements encoding.TextMarshaler.
func (s DutyStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid duty status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *DutyStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseDutyStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseDutyStatus parses the text form of a status. It accepts the canonical
// names as well as the common short aliases used by log devices.
func ParseDutyStatus(s string) (DutyStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off_duty", "off", "offduty":
		return OffDuty, nil
	case "sleeper_berth", "sleeper", "sb":
		return SleeperBerth, nil
	case "on_duty", "on", "on_duty_not_driving", "onduty":
		return OnDutyNotDriving, nil
	case "driving", "d", "drive":
		return Driving, nil
	default:
		return OffDuty, fmt.Errorf("unknown duty status %q", s)
	}
}
