// Package attendance holds the pure attendance-log algorithms: the
// sort/filter engine used by the feed and exports, and the in/out
// compression with billable-hours rounding.
package attendance

import (
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for filter bounds.
const DateLayout = "2006-01-02"

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseInstant parses a stored timestamp. Strings without a zone are read
// as UTC. The result is always in UTC.
func ParseInstant(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatInstant renders t the way timestamps are stored.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// UTCDate returns the YYYY-MM-DD date portion of s in UTC.
func UTCDate(s string) (string, bool) {
	t, ok := ParseInstant(s)
	if !ok {
		return "", false
	}
	return t.Format(DateLayout), true
}

// ParseDate parses a YYYY-MM-DD calendar day as midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
