package catalog

import (
	"strconv"
	"strings"
	"time"
)

// Shift is a daily working interval in "HH:MM" local time.
type Shift struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Absence is a planned unavailability window.
type Absence struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// WorkSchedule describes when a team works: weekdays, daily shifts, and
// planned absences subtracted from both.
type WorkSchedule struct {
	WorkingDays []time.Weekday `json:"working_days"`
	Shifts      []Shift        `json:"shifts"`
	Absences    []Absence      `json:"absences,omitempty"`
}

// Covers reports whether the schedule can serve the requested window:
// the window's day is a working day, one shift contains the window's
// time-of-day span, and no planned absence overlaps it.
func (s *WorkSchedule) Covers(windowStart, windowEnd time.Time) bool {
	if windowEnd.Before(windowStart) {
		return false
	}
	if !s.worksOn(windowStart.Weekday()) {
		return false
	}

	startMin := windowStart.Hour()*60 + windowStart.Minute()
	endMin := windowEnd.Hour()*60 + windowEnd.Minute()
	if !windowEnd.Truncate(24 * time.Hour).Equal(windowStart.Truncate(24 * time.Hour)) {
		// Multi-day windows only need the first day's shift to reach end of day.
		endMin = 24 * 60
	}

	shiftOK := false
	for _, sh := range s.Shifts {
		from, ok1 := parseClock(sh.Start)
		to, ok2 := parseClock(sh.End)
		if ok1 && ok2 && from <= startMin && endMin <= to {
			shiftOK = true
			break
		}
	}
	if !shiftOK {
		return false
	}

	for _, a := range s.Absences {
		if a.From.Before(windowEnd) && windowStart.Before(a.To) {
			return false
		}
	}
	return true
}

func (s *WorkSchedule) worksOn(day time.Weekday) bool {
	for _, d := range s.WorkingDays {
		if d == day {
			return true
		}
	}
	return false
}

// parseClock turns "HH:MM" into minutes since midnight.
func parseClock(v string) (int, bool) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 24 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
