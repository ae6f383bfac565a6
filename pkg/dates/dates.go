// Package dates parses the calendar dates accepted on order headers and
// price records.
package dates

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the canonical rendering of a calendar date.
const Layout = "2006-01-02"

var layouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	Layout,
}

// Parse accepts a date with or without a time part and returns midnight UTC
// of that calendar day.
func Parse(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return Truncate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// Truncate drops the time of day, keeping the calendar day t names.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Format renders t as YYYY-MM-DD.
func Format(t time.Time) string {
	return t.Format(Layout)
}
