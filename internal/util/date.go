package util

import "time"

// DateKey formats t as a calendar-date string (YYYY-MM-DD), the canonical
// key for matching signals to bars and intersecting trading calendars.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	return DateKey(a) == DateKey(b)
}
