package availability

import (
	"fmt"
	"time"
)

const (
	ReasonDoctorUnavailable = "doctor is not accepting appointments"
	ReasonNoSchedule        = "doctor does not work on this day"
	ReasonClosed            = "doctor is off on this day"
)

// Availability is the bookable view of one doctor on one calendar date.
type Availability struct {
	Date           string   `json:"date"`
	Day            string   `json:"day"`
	IsOpen         bool     `json:"is_open"`
	Reason         string   `json:"reason,omitempty"`
	StartTime      string   `json:"start_time,omitempty"`
	EndTime        string   `json:"end_time,omitempty"`
	CandidateSlots []string `json:"candidate_slots"`
	BookedSlots    []string `json:"booked_slots"`
	FreeSlots      []string `json:"free_slots"`
}

// IsCandidate reports whether start is one of the generated slot labels.
func (a Availability) IsCandidate(start string) bool {
	return contains(a.CandidateSlots, start)
}

// IsFree reports whether start is still bookable.
func (a Availability) IsFree(start string) bool {
	return contains(a.FreeSlots, start)
}

// Compute derives the free slots for date from the doctor's weekly schedule
// and the start times of the appointments already holding a slot that day.
// The booked start times must already be scoped to this doctor, this date and
// the active statuses.
func Compute(schedule WeeklySchedule, doctorAvailable bool, bookedStarts []string, date time.Time) (Availability, error) {
	out := Availability{
		Date:           date.Format(time.DateOnly),
		Day:            date.Weekday().String(),
		CandidateSlots: []string{},
		BookedSlots:    []string{},
		FreeSlots:      []string{},
	}

	if !doctorAvailable {
		out.Reason = ReasonDoctorUnavailable
		return out, nil
	}

	day, ok := schedule.ForDay(date.Weekday())
	if !ok {
		out.Reason = ReasonNoSchedule
		return out, nil
	}
	if day.Closed {
		out.Reason = ReasonClosed
		return out, nil
	}

	candidates, err := CandidateSlots(day.StartTime, day.EndTime)
	if err != nil {
		return Availability{}, fmt.Errorf("%s schedule: %w", day.Day, err)
	}

	out.IsOpen = true
	out.StartTime = day.StartTime
	out.EndTime = day.EndTime
	out.CandidateSlots = candidates

	booked := make(map[string]struct{}, len(bookedStarts))
	for _, s := range bookedStarts {
		if _, dup := booked[s]; dup {
			continue
		}
		booked[s] = struct{}{}
		out.BookedSlots = append(out.BookedSlots, s)
	}

	for _, c := range candidates {
		if _, taken := booked[c]; !taken {
			out.FreeSlots = append(out.FreeSlots, c)
		}
	}

	return out, nil
}

// CandidateSlots walks the window in SlotWidth steps. A slot is emitted only
// when it ends at or before end, so a window shorter than SlotWidth is empty.
func CandidateSlots(start, end string) ([]string, error) {
	from, err := ParseClock(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseEndClock(end)
	if err != nil {
		return nil, err
	}

	slots := []string{}
	for s := from; s+SlotWidth <= to; s += SlotWidth {
		slots = append(slots, FormatClock(s))
	}
	return slots, nil
}

// EndOf returns the end label of the slot starting at start.
func EndOf(start string) (string, error) {
	s, err := ParseClock(start)
	if err != nil {
		return "", err
	}
	return FormatClock(s + SlotWidth), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
