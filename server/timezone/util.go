// Package timezone resolves salon time zones and formats local times.
package timezone

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Moscow is the zone most salons operate in.
const Moscow = "Europe/Moscow"

// Display layouts used in client-facing text.
const (
	SlotLayout = "02.01 15:04"
	DayLayout  = "02.01"
)

var locations sync.Map // name -> *time.Location

// ParseTimezone parses an IANA identifier (e.g. "Europe/Moscow"). Empty and
// "UTC" resolve to UTC. Loaded zones are cached.
func ParseTimezone(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return time.UTC, nil
	}
	if loc, ok := locations.Load(tz); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC, errors.Wrapf(err, "invalid timezone %q", tz)
	}
	locations.Store(tz, loc)
	return loc, nil
}

// Resolve returns the zone named tz, or fallback when tz is empty or unknown.
// UTC is returned when both fail.
func Resolve(tz, fallback string) *time.Location {
	if tz != "" {
		if loc, err := ParseTimezone(tz); err == nil {
			return loc
		}
	}
	loc, _ := ParseTimezone(fallback)
	return loc
}

// IsValidTimezone checks if a timezone identifier is valid.
func IsValidTimezone(tz string) bool {
	_, err := ParseTimezone(tz)
	return err == nil
}

// StartOfDay returns 00:00 of t's day in tz.
func StartOfDay(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = time.UTC
	}
	local := t.In(tz)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz)
}

// EndOfDay returns the last instant of t's day in tz.
func EndOfDay(t time.Time, tz *time.Location) time.Time {
	return StartOfDay(t, tz).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

var weekdays = [...]string{"воскресенье", "понедельник", "вторник", "среда", "четверг", "пятница", "суббота"}

// Weekday returns the Russian weekday name of t.
func Weekday(t time.Time) string {
	return weekdays[t.Weekday()]
}

// FormatSlot renders t in tz as "02.01 15:04".
func FormatSlot(t time.Time, tz *time.Location) string {
	if tz == nil {
		tz = time.UTC
	}
	return t.In(tz).Format(SlotLayout)
}
