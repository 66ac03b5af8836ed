package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimezone(t *testing.T) {
	tests := []struct {
		tz      string
		wantErr bool
	}{
		{tz: "UTC"},
		{tz: ""},
		{tz: "Europe/Moscow"},
		{tz: "Asia/Yekaterinburg"},
		{tz: "Mars/Olympus", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.tz, func(t *testing.T) {
			loc, err := ParseTimezone(tt.tz)
			require.NotNil(t, loc)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, time.UTC, loc)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseTimezone_Cached(t *testing.T) {
	a, err := ParseTimezone(Moscow)
	require.NoError(t, err)
	b, err := ParseTimezone(Moscow)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "Asia/Yekaterinburg", Resolve("Asia/Yekaterinburg", Moscow).String())
	assert.Equal(t, Moscow, Resolve("", Moscow).String())
	assert.Equal(t, Moscow, Resolve("bogus", Moscow).String())
	assert.Equal(t, time.UTC, Resolve("bogus", "also-bogus"))
}

func TestDayBounds(t *testing.T) {
	msk := Resolve(Moscow, "")
	// 22:30 UTC is already the next day in Moscow.
	ts := time.Date(2024, 3, 10, 22, 30, 0, 0, time.UTC)

	start := StartOfDay(ts, msk)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, msk), start)
	end := EndOfDay(ts, msk)
	assert.Equal(t, 11, end.Day())
	assert.Equal(t, 23, end.Hour())
	assert.True(t, end.Before(start.AddDate(0, 0, 1)))
}

func TestWeekdayAndFormat(t *testing.T) {
	ts := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "пятница", Weekday(ts))
	assert.Equal(t, "05.01 15:00", FormatSlot(ts, Resolve(Moscow, "")))
	assert.Equal(t, "05.01 12:00", FormatSlot(ts, nil))
}
