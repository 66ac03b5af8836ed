package command

import (
	"strings"
	"time"

	"github.com/vosarsen/ai-admin-v2-sub004/server/service/catalog"
	"github.com/vosarsen/ai-admin-v2-sub004/server/timezone"
)

var datetimeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02.01.2006 15:04",
}

var timeLayouts = []string{"15:04", "15.04", "15"}

// parseDate understands ISO dates, dd.mm[.yyyy] and relative words.
func parseDate(value string, now time.Time) (time.Time, error) {
	v := normalize(value)
	today := timezone.StartOfDay(now, now.Location())
	switch v {
	case "", "today", "сегодня":
		return today, nil
	case "tomorrow", "завтра":
		return today.AddDate(0, 0, 1), nil
	case "day after tomorrow", "послезавтра":
		return today.AddDate(0, 0, 2), nil
	}

	if t, err := time.ParseInLocation(catalog.DateLayout, v, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("02.01.2006", v, now.Location()); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("02.01", v, now.Location())
	if err != nil {
		return time.Time{}, validationError("unrecognized date %q", value)
	}
	t = time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())
	// A day-month already behind us means next year.
	if t.Before(today) {
		t = t.AddDate(1, 0, 0)
	}
	return t, nil
}

// parseDateTime reads datetime, or date plus time, in the company time zone.
// ok is false when neither a datetime nor a time was given.
func parseDateTime(cmd Command, now time.Time) (t time.Time, ok bool, err error) {
	if raw := cmd.Param("datetime", "new_datetime"); raw != "" {
		for _, layout := range datetimeLayouts {
			if t, err := time.ParseInLocation(layout, raw, now.Location()); err == nil {
				return t, true, nil
			}
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.In(now.Location()), true, nil
		}
		return time.Time{}, true, validationError("unrecognized datetime %q", raw)
	}

	rawTime := strings.TrimSpace(cmd.Param("time", "new_time"))
	if rawTime == "" {
		return time.Time{}, false, nil
	}
	day, err := parseDate(cmd.Param("date", "new_date"), now)
	if err != nil {
		return time.Time{}, true, err
	}
	for _, layout := range timeLayouts {
		if clock, err := time.Parse(layout, rawTime); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, now.Location()), true, nil
		}
	}
	return time.Time{}, true, validationError("unrecognized time %q", rawTime)
}
