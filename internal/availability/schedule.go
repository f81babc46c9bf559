package availability

import (
	"errors"
	"fmt"
	"time"
)

// SlotWidth is the length of every bookable slot.
const SlotWidth = 30 * time.Minute

const (
	clockLayout = "15:04"
	midnightEnd = "24:00"
)

var (
	ErrInvalidClock   = errors.New("time must be HH:MM")
	ErrInvalidWeekday = errors.New("unknown weekday")
	ErrDuplicateDay   = errors.New("weekday listed more than once")
	ErrEmptyWindow    = errors.New("start_time must be before end_time")
)

// DayAvailability is the working window for one weekday.
type DayAvailability struct {
	Day       string `json:"day"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Closed    bool   `json:"closed"`
}

// WeeklySchedule holds at most one entry per weekday.
type WeeklySchedule []DayAvailability

// ForDay returns the entry for the given weekday, if any.
func (ws WeeklySchedule) ForDay(day time.Weekday) (DayAvailability, bool) {
	name := day.String()
	for _, d := range ws {
		if d.Day == name {
			return d, true
		}
	}
	return DayAvailability{}, false
}

// Validate checks the invariants a doctor's saved schedule must hold.
func (ws WeeklySchedule) Validate() error {
	seen := make(map[string]struct{}, len(ws))
	for _, d := range ws {
		if _, err := ParseWeekday(d.Day); err != nil {
			return err
		}
		if _, dup := seen[d.Day]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateDay, d.Day)
		}
		seen[d.Day] = struct{}{}

		if d.Closed {
			continue
		}
		start, err := ParseClock(d.StartTime)
		if err != nil {
			return fmt.Errorf("%s start_time: %w", d.Day, err)
		}
		end, err := ParseEndClock(d.EndTime)
		if err != nil {
			return fmt.Errorf("%s end_time: %w", d.Day, err)
		}
		if start >= end {
			return fmt.Errorf("%w: %s", ErrEmptyWindow, d.Day)
		}
	}
	return nil
}

// ParseWeekday maps an English weekday name such as "Monday" to time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, name)
}

// ParseClock parses a zero padded HH:MM label into minutes after midnight.
func ParseClock(s string) (time.Duration, error) {
	if len(s) != len(clockLayout) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// ParseEndClock is ParseClock for the end of a window, which may also be
// "24:00" so a day can run to midnight.
func ParseEndClock(s string) (time.Duration, error) {
	if s == midnightEnd {
		return 24 * time.Hour, nil
	}
	return ParseClock(s)
}

// FormatClock renders an offset from midnight as HH:MM.
func FormatClock(d time.Duration) string {
	mins := int(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}
