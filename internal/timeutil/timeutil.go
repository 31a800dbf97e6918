package timeutil

import (
	"fmt"
	"time"
)

// DefaultTimezone is used when a reminder carries no timezone of its own.
const DefaultTimezone = "America/Santiago"

var defaultLocation = time.UTC

// ResolveLocation returns the location for an IANA timezone name with UTC fallback.
// The second return value reports whether the fallback was used.
func ResolveLocation(timezone string) (*time.Location, bool) {
	if timezone == "" {
		return defaultLocation, true
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return defaultLocation, true
	}
	return loc, false
}

// WallClock holds the calendar components of an instant in some timezone,
// in the order and domains a 5-field cron expression is evaluated against.
type WallClock struct {
	Minute     int // 0-59
	Hour       int // 0-23
	DayOfMonth int // 1-31
	Month      int // 1-12
	DayOfWeek  int // 0-6, 0 = Sunday
}

// ProjectToZone converts an absolute instant into wall-clock components in the
// given IANA timezone. An unknown timezone is an error rather than a silent
// UTC fallback so callers can surface the misconfiguration.
func ProjectToZone(t time.Time, timezone string) (WallClock, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return WallClock{}, fmt.Errorf("unknown timezone %q: %w", timezone, err)
	}

	local := t.In(loc)
	return WallClock{
		Minute:     local.Minute(),
		Hour:       local.Hour(),
		DayOfMonth: local.Day(),
		Month:      int(local.Month()),
		DayOfWeek:  int(local.Weekday()),
	}, nil
}

// TruncateToMinute zeroes out seconds and sub-second precision.
// Firing decisions compare instants at minute granularity only.
func TruncateToMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// SameMinute reports whether two instants fall in the same minute.
func SameMinute(a, b time.Time) bool {
	return TruncateToMinute(a).Equal(TruncateToMinute(b))
}
