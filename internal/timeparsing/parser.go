// Package timeparsing turns user-supplied time expressions into instants.
//
// Expressions are tried in layers, first match wins:
//  1. Compact duration (+6h, -1d, 2w)
//  2. Absolute timestamp (RFC 3339, date-only)
//  3. Natural language (yesterday, 3 days ago, last monday)
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// compactDurationRe matches [+-]?(\d+)([hdwmy]).
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// ParseCompactDuration parses compact duration syntax relative to now.
//
// Units: h hours, d days, w weeks, m months, y years. No sign means forward.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	amount, unit, err := compactParts(s)
	if err != nil {
		return time.Time{}, err
	}
	return applyDuration(now, amount, unit), nil
}

func compactParts(s string) (int, string, error) {
	m := compactDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, "", fmt.Errorf("not a compact duration: %q", s)
	}
	amount, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, "", fmt.Errorf("invalid duration amount: %q", m[2])
	}
	if m[1] == "-" {
		amount = -amount
	}
	return amount, m[3], nil
}

func applyDuration(base time.Time, amount int, unit string) time.Time {
	switch unit {
	case "h":
		return base.Add(time.Duration(amount) * time.Hour)
	case "d":
		return base.AddDate(0, 0, amount)
	case "w":
		return base.AddDate(0, 0, amount*7)
	case "m":
		return base.AddDate(0, amount, 0)
	case "y":
		return base.AddDate(amount, 0, 0)
	}
	return base
}

// IsCompactDuration reports whether s uses compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

// absoluteLayouts are tried in order by ParseAbsolute.
var absoluteLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseAbsolute parses a timestamp or a bare date. Values without a zone
// are read in loc.
func ParseAbsolute(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not an absolute time: %q", s)
}

// ParseRelativeTime resolves s against now using every layer.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}
	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}
	if t, err := ParseAbsolute(s, now.Location()); err == nil {
		return t, nil
	}
	t, err := ParseNaturalLanguage(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse time %q: expected a duration like 2h, a date, or a phrase like \"yesterday\"", s)
	}
	return t, nil
}

// ParseSince resolves the argument of a --since flag. It differs from
// ParseRelativeTime only in that an unsigned compact duration looks back:
// "2h" means two hours ago. The result is never after now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if IsCompactDuration(s) && s[0] != '+' && s[0] != '-' {
		s = "-" + s
	}
	t, err := ParseRelativeTime(s, now)
	if err != nil {
		return time.Time{}, err
	}
	if t.After(now) {
		return time.Time{}, fmt.Errorf("since %q is in the future", s)
	}
	return t, nil
}
