package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var russianDateRe = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})\s+(\d{1,2}):(\d{1,2})(?::(\d{1,2}))?$`)

// isoLayouts are tried, in order, when the input is not in the Russian form.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseRussianDate parses "DD.MM.YYYY HH:MM" or "DD.MM.YYYY HH:MM:SS" as a
// wall-clock time in loc (time.Local when nil). Inputs in any other shape are
// parsed as ISO-8601. It reports false when nothing matches; it never panics.
//
// Example:
//
//	t, ok := utils.ParseRussianDate("16.09.2025 11:13", nil)
func ParseRussianDate(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	m := russianDateRe.FindStringSubmatch(s)
	if m == nil {
		return parseISO(s, loc)
	}

	n := make([]int, 6)
	for i := 1; i <= 6; i++ {
		if m[i] == "" {
			continue // seconds are optional
		}
		v, err := strconv.Atoi(m[i])
		if err != nil {
			return time.Time{}, false
		}
		n[i-1] = v
	}
	day, month, year, hour, minute, second := n[0], n[1], n[2], n[3], n[4], n[5]
	if month < 1 || month > 12 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	// time.Date normalizes 31.02 into March; reject instead.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

func parseISO(s string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range isoLayouts[1:] {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
