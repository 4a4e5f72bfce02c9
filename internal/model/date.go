package model

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// ParseDate parses a calendar date. Full RFC 3339 timestamps are accepted and
// truncated to their date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// DaysUntil returns the whole days from today to date. ok is false when date
// is empty or unparseable.
func DaysUntil(date string, today time.Time) (days int, ok bool) {
	if strings.TrimSpace(date) == "" {
		return 0, false
	}
	d, err := ParseDate(date)
	if err != nil {
		return 0, false
	}
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(d.Sub(t).Hours() / 24), true
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
