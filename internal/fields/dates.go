package fields

import (
	"strings"
	"time"
)

// wire format for DATE values, matching what JavaScript clients produce with toISOString.
const dateOutputLayout = "2006-01-02T15:04:05.000Z07:00"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate accepts the ISO 8601 shapes clients send: a calendar date, or a date-time with optional
// seconds, fraction and offset. Values without an offset are read as UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatDate renders t the way DATE values are returned.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateOutputLayout)
}
