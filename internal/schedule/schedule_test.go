package schedule

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/websift/dedup-engine/pkg/errors"
)

func TestParse(t *testing.T) {
	cases := []struct {
		descriptor string
		want       Schedule
	}{
		{"02:00", Schedule{Frequency: Daily, Hour: 2}},
		{"23:59", Schedule{Frequency: Daily, Hour: 23, Minute: 59}},
		{"sunday 03:00", Schedule{Frequency: Weekly, Hour: 3, Weekday: time.Sunday}},
		{"Friday 18:30", Schedule{Frequency: Weekly, Hour: 18, Minute: 30, Weekday: time.Friday}},
		{"1 04:00", Schedule{Frequency: Monthly, Hour: 4, DayOfMonth: 1}},
		{"28 12:15", Schedule{Frequency: Monthly, Hour: 12, Minute: 15, DayOfMonth: 28}},
		{"  02:00  ", Schedule{Frequency: Daily, Hour: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.descriptor, func(t *testing.T) {
			got, err := Parse(tc.descriptor)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tc.descriptor, got, tc.want)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	descriptors := []string{
		"",
		"2am",
		"25:00",
		"12:61",
		"someday 03:00",
		"0 04:00",  // day of month below range
		"29 04:00", // day of month above range
		"sunday 03:00 extra",
	}
	for _, d := range descriptors {
		t.Run(d, func(t *testing.T) {
			if _, err := Parse(d); !errors.Is(err, apperrors.ErrInvalidConfiguration) {
				t.Errorf("Parse(%q): want ErrInvalidConfiguration, got %v", d, err)
			}
		})
	}
}

func TestNextDaily(t *testing.T) {
	s := Schedule{Frequency: Daily, Hour: 2}
	cases := []struct {
		after string
		want  string
	}{
		{"2026-03-10T01:00:00Z", "2026-03-10T02:00:00Z"}, // before today's fire
		{"2026-03-10T02:00:00Z", "2026-03-11T02:00:00Z"}, // exactly at fire time, strictly after
		{"2026-03-10T15:00:00Z", "2026-03-11T02:00:00Z"}, // after today's fire
	}
	for _, tc := range cases {
		after, _ := time.Parse(time.RFC3339, tc.after)
		want, _ := time.Parse(time.RFC3339, tc.want)
		if got := s.Next(after); !got.Equal(want) {
			t.Errorf("Next(%s) = %s, want %s", tc.after, got, want)
		}
	}
}

func TestNextWeekly(t *testing.T) {
	s := Schedule{Frequency: Weekly, Hour: 3, Weekday: time.Sunday}
	// 2026-03-10 is a Tuesday.
	after, _ := time.Parse(time.RFC3339, "2026-03-10T12:00:00Z")
	got := s.Next(after)
	want, _ := time.Parse(time.RFC3339, "2026-03-15T03:00:00Z")
	if !got.Equal(want) {
		t.Errorf("Next = %s, want %s", got, want)
	}

	// Already Sunday but past the fire time: next week.
	after, _ = time.Parse(time.RFC3339, "2026-03-15T04:00:00Z")
	got = s.Next(after)
	want, _ = time.Parse(time.RFC3339, "2026-03-22T03:00:00Z")
	if !got.Equal(want) {
		t.Errorf("Next = %s, want %s", got, want)
	}
}

func TestNextMonthly(t *testing.T) {
	s := Schedule{Frequency: Monthly, Hour: 4, DayOfMonth: 1}
	after, _ := time.Parse(time.RFC3339, "2026-03-10T12:00:00Z")
	got := s.Next(after)
	want, _ := time.Parse(time.RFC3339, "2026-04-01T04:00:00Z")
	if !got.Equal(want) {
		t.Errorf("Next = %s, want %s", got, want)
	}

	// Before this month's fire.
	after, _ = time.Parse(time.RFC3339, "2026-03-01T03:00:00Z")
	got = s.Next(after)
	want, _ = time.Parse(time.RFC3339, "2026-03-01T04:00:00Z")
	if !got.Equal(want) {
		t.Errorf("Next = %s, want %s", got, want)
	}

	// December rolls into January.
	after, _ = time.Parse(time.RFC3339, "2026-12-15T00:00:00Z")
	got = s.Next(after)
	want, _ = time.Parse(time.RFC3339, "2027-01-01T04:00:00Z")
	if !got.Equal(want) {
		t.Errorf("Next = %s, want %s", got, want)
	}
}

func TestString(t *testing.T) {
	cases := []struct {
		descriptor string
	}{
		{"02:00"},
		{"sunday 03:00"},
		{"1 04:00"},
	}
	for _, tc := range cases {
		s, err := Parse(tc.descriptor)
		if err != nil {
			t.Fatal(err)
		}
		if got := s.String(); got != tc.descriptor {
			t.Errorf("String() = %q, want %q", got, tc.descriptor)
		}
	}
}
