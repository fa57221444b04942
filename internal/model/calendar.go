package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"

	timeLayoutMinutes = "15:04"
	timeLayoutSeconds = "15:04:05"
)

// NormalizeDate reduces t to its calendar day as seen in t's own location,
// returned as midnight UTC. Every date that reaches storage or a comparison
// goes through here exactly once.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp. For timestamps the
// calendar day is taken in the offset the caller wrote, not in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return NormalizeDate(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC 3339", s)
	}
	return NormalizeDate(t), nil
}

// FormatDate renders a normalized date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return NormalizeDate(t).Format(DateLayout)
}

// NextDay returns the calendar day after t.
func NextDay(t time.Time) time.Time {
	return NormalizeDate(t).AddDate(0, 0, 1)
}

// NormalizeTime canonicalizes a time-of-day key. "9:00" and "09:00:00" both
// become "09:00"; seconds are kept only when non-zero. The result is compared
// by equality only.
func NormalizeTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) == 4 || len(s) == 7 {
		// tolerate a missing leading zero on the hour
		s = "0" + s
	}
	if t, err := time.Parse(timeLayoutMinutes, s); err == nil {
		return t.Format(timeLayoutMinutes), nil
	}
	t, err := time.Parse(timeLayoutSeconds, s)
	if err != nil {
		return "", fmt.Errorf("invalid time %q: expected HH:MM or HH:MM:SS", s)
	}
	if t.Second() == 0 {
		return t.Format(timeLayoutMinutes), nil
	}
	return t.Format(timeLayoutSeconds), nil
}
