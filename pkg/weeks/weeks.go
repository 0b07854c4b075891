// Package weeks buckets calendar dates into ISO-8601 weeks.
package weeks

import (
	"strings"
	"time"
)

// Week is the ISO-8601 week a date falls in. WeekStart is the Monday and
// WeekEnd the Sunday, both at midnight UTC.
type Week struct {
	IsoYear   int
	IsoWeek   int
	WeekStart time.Time
	WeekEnd   time.Time
}

// Key identifies the week by its Monday, e.g. "2025-01-06".
func (w Week) Key() string {
	return w.WeekStart.Format(DateLayout)
}

const DateLayout = "2006-01-02"

// accepted string layouts, tried in order. US month-first is preferred over
// EU day-first when a slash date is ambiguous.
var dateLayouts = []string{
	DateLayout,
	"01/02/2006",
	"1/2/2006",
	"02/01/2006",
	"2/1/2006",
	"2006/01/02",
	"2006/1/2",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
}

// ParseDate converts a date-like value to a calendar date at midnight UTC.
// Supported inputs are strings in the layouts above, time.Time and *time.Time.
// The second return is false when no date could be derived.
func ParseDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return truncate(v), true
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return truncate(*v), true
	case string:
		return parseString(v)
	case []byte:
		return parseString(string(v))
	default:
		return time.Time{}, false
	}
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncate(t), true
		}
	}
	return time.Time{}, false
}

// truncate keeps the calendar date in the value's own location.
func truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ForDate returns the ISO week containing d.
func ForDate(d time.Time) Week {
	d = truncate(d)
	isoYear, isoWeek := d.ISOWeek()

	// Monday=0 ... Sunday=6
	offset := (int(d.Weekday()) + 6) % 7
	start := d.AddDate(0, 0, -offset)

	return Week{
		IsoYear:   isoYear,
		IsoWeek:   isoWeek,
		WeekStart: start,
		WeekEnd:   start.AddDate(0, 0, 6),
	}
}

// Resolve parses value and returns its ISO week. ok is false for values that
// are not dates; callers drop such rows.
func Resolve(value any) (Week, bool) {
	d, ok := ParseDate(value)
	if !ok {
		return Week{}, false
	}
	return ForDate(d), true
}

// FirstResolvable resolves the first non-empty candidate that parses.
func FirstResolvable(values ...string) (Week, bool) {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if w, ok := Resolve(v); ok {
			return w, true
		}
	}
	return Week{}, false
}
