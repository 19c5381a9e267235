package core

import (
	"strings"
	"time"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// ParseDate parses a `YYYY-MM-DD` calendar date at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(dateLayout, CleanString(s), loc)
}

// FormatDate is the inverse of ParseDate.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// EndOfDay returns the last instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location()).Add(-time.Nanosecond)
}

// StartOfDay returns midnight of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
