package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RecurrenceKind says how a slot is addressed in the calendar.
type RecurrenceKind string

const (
	RecurrenceWeekly RecurrenceKind = "weekly" // repeats every week on Weekday
	RecurrenceDated  RecurrenceKind = "dated"  // happens once on Date
)

// DateLayout is the wire and storage format of Recurrence.Date.
const DateLayout = "2006-01-02"

// ClockLayout is the wire and storage format of slot start and end times.
const ClockLayout = "15:04"

// Recurrence is the calendar address of a slot.  For weekly templates
// Weekday holds the label ("Monday".."Sunday") and Date is empty; for
// dated slots Date holds "YYYY-MM-DD" and Weekday is empty.
type Recurrence struct {
	Kind    RecurrenceKind `json:"kind"`
	Weekday string         `json:"weekday,omitempty"`
	Date    string         `json:"date,omitempty"`
}

var (
	errBothRecurrence = errors.New("weekday and date are mutually exclusive")
	errNoRecurrence   = errors.New("one of weekday or date is required")
)

// weekdays maps canonical labels to their storage number, Monday = 1.
var weekdays = map[string]int{
	"Monday":    1,
	"Tuesday":   2,
	"Wednesday": 3,
	"Thursday":  4,
	"Friday":    5,
	"Saturday":  6,
	"Sunday":    7,
}

// NewRecurrence builds a Recurrence from the two mutually exclusive
// inputs.  Supplying both or neither is an error; no precedence is
// inferred between them.  Weekday labels are matched case-insensitively
// and normalised to their canonical form.
func NewRecurrence(weekday, date string) (Recurrence, error) {
	weekday = strings.TrimSpace(weekday)
	date = strings.TrimSpace(date)
	switch {
	case weekday != "" && date != "":
		return Recurrence{}, errBothRecurrence
	case weekday != "":
		label, ok := CanonicalWeekday(weekday)
		if !ok {
			return Recurrence{}, fmt.Errorf("unknown weekday %q", weekday)
		}
		return Recurrence{Kind: RecurrenceWeekly, Weekday: label}, nil
	case date != "":
		if _, err := time.Parse(DateLayout, date); err != nil {
			return Recurrence{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
		}
		return Recurrence{Kind: RecurrenceDated, Date: date}, nil
	}
	return Recurrence{}, errNoRecurrence
}

// CanonicalWeekday returns the canonical label for a case-insensitive
// weekday name.
func CanonicalWeekday(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for label := range weekdays {
		if strings.EqualFold(label, s) {
			return label, true
		}
	}
	return "", false
}

// WeekdayNumber returns the storage number of a canonical weekday label.
func WeekdayNumber(label string) (int, bool) {
	n, ok := weekdays[label]
	return n, ok
}

// WeekdayLabel is the inverse of WeekdayNumber.
func WeekdayLabel(n int) (string, bool) {
	for label, v := range weekdays {
		if v == n {
			return label, true
		}
	}
	return "", false
}

// ParseClock parses an "HH:MM" time of day and returns minutes since
// midnight.
func ParseClock(s string) (int, error) {
	if len(s) != len(ClockLayout) {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
