// Package schedule parses humane recurrence descriptors and computes the
// next run time for periodic maintenance jobs.
//
// Three descriptor shapes are accepted:
//
//	"02:00"         daily at 02:00
//	"sunday 03:00"  weekly on Sunday at 03:00
//	"1 04:00"       monthly on day 1 at 04:00
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/websift/dedup-engine/pkg/errors"
)

// Frequency is how often a schedule fires.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Schedule is a parsed recurrence descriptor.
type Schedule struct {
	Frequency  Frequency
	Hour       int
	Minute     int
	Weekday    time.Weekday // weekly only
	DayOfMonth int          // monthly only, 1..28
}

// Parse parses a descriptor string into a Schedule.
func Parse(descriptor string) (Schedule, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(descriptor)))
	switch len(fields) {
	case 1:
		hour, minute, err := parseClock(fields[0])
		if err != nil {
			return Schedule{}, err
		}
		return Schedule{Frequency: Daily, Hour: hour, Minute: minute}, nil
	case 2:
		hour, minute, err := parseClock(fields[1])
		if err != nil {
			return Schedule{}, err
		}
		if weekday, ok := weekdays[fields[0]]; ok {
			return Schedule{Frequency: Weekly, Hour: hour, Minute: minute, Weekday: weekday}, nil
		}
		day, err := strconv.Atoi(fields[0])
		if err != nil || day < 1 || day > 28 {
			return Schedule{}, apperrors.Newf(apperrors.ErrInvalidConfiguration,
				"schedule day %q must be a weekday name or a day of month 1-28", fields[0])
		}
		return Schedule{Frequency: Monthly, Hour: hour, Minute: minute, DayOfMonth: day}, nil
	default:
		return Schedule{}, apperrors.Newf(apperrors.ErrInvalidConfiguration,
			"schedule descriptor %q: want \"HH:MM\", \"<weekday> HH:MM\" or \"<day> HH:MM\"", descriptor)
	}
}

func parseClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, apperrors.Newf(apperrors.ErrInvalidConfiguration, "clock %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, apperrors.Newf(apperrors.ErrInvalidConfiguration, "clock %q: hour out of range", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, apperrors.Newf(apperrors.ErrInvalidConfiguration, "clock %q: minute out of range", s)
	}
	return hour, minute, nil
}

// Next returns the first fire time strictly after the given instant, in
// that instant's location.
func (s Schedule) Next(after time.Time) time.Time {
	loc := after.Location()
	at := func(year int, month time.Month, day int) time.Time {
		return time.Date(year, month, day, s.Hour, s.Minute, 0, 0, loc)
	}

	switch s.Frequency {
	case Weekly:
		candidate := at(after.Year(), after.Month(), after.Day())
		offset := (int(s.Weekday) - int(after.Weekday()) + 7) % 7
		candidate = candidate.AddDate(0, 0, offset)
		if !candidate.After(after) {
			candidate = candidate.AddDate(0, 0, 7)
		}
		return candidate
	case Monthly:
		candidate := at(after.Year(), after.Month(), s.DayOfMonth)
		if !candidate.After(after) {
			candidate = at(after.Year(), after.Month()+1, s.DayOfMonth)
		}
		return candidate
	default:
		candidate := at(after.Year(), after.Month(), after.Day())
		if !candidate.After(after) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate
	}
}

// String renders the schedule back into descriptor form.
func (s Schedule) String() string {
	clock := fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
	switch s.Frequency {
	case Weekly:
		return strings.ToLower(s.Weekday.String()) + " " + clock
	case Monthly:
		return fmt.Sprintf("%d %s", s.DayOfMonth, clock)
	default:
		return clock
	}
}
