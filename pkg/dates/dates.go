// Package dates turns the date strings sources publish into timestamps.
// Unparsable input yields the zero time instead of an error so that a bad
// date never aborts a feed.
package dates

import (
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Parse parses raw in UTC.
func Parse(raw string) time.Time { return ParseIn(raw, time.UTC) }

// ParseIn parses raw, reading zone-less values in loc. Unix timestamps in
// seconds or milliseconds are accepted.
func ParseIn(raw string, loc *time.Location) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if loc == nil {
		loc = time.UTC
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return FromUnix(n)
	}

	t, err := dateparse.ParseIn(raw, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FromUnix accepts seconds or milliseconds since the epoch.
func FromUnix(n int64) time.Time {
	switch {
	case n <= 0:
		return time.Time{}
	case n >= 1e12:
		return time.UnixMilli(n).UTC()
	default:
		return time.Unix(n, 0).UTC()
	}
}

// Valid reports whether t came from a successful parse.
func Valid(t time.Time) bool { return !t.IsZero() }
