package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCalendar(t *testing.T) {
	tests := []struct {
		name       string
		definition string
		spec       string
		wantErr    bool
	}{
		{
			name:       "empty definition uses defaults",
			definition: "",
			spec:       "0 * * * * *",
		},
		{
			name:       "newline separated",
			definition: "second=0\nminute=30\nhour=14",
			spec:       "0 30 14 * * *",
		},
		{
			name:       "semicolon separated",
			definition: "minute=*; hour=*",
			spec:       "0 * * * * *",
		},
		{
			name:       "whitespace tolerated",
			definition: "  minute = 15 \n hour = 6 ",
			spec:       "0 15 6 * * *",
		},
		{
			name:       "unknown keys ignored",
			definition: "minute=5\nfoo=bar",
			spec:       "0 5 * * * *",
		},
		{
			name:       "day fields",
			definition: "dayOfMonth=1\nmonth=3\ndayOfWeek=*",
			spec:       "0 * * 1 3 *",
		},
		{
			name:       "entry without equals sign",
			definition: "minute",
			wantErr:    true,
		},
		{
			name:       "invalid field value",
			definition: "minute=sixty",
			wantErr:    true,
		},
		{
			name:       "invalid timezone",
			definition: "timezone=Mars/Olympus",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal, err := ParseCalendar(tt.definition)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.spec, cal.spec)
		})
	}
}

func TestCalendarNext(t *testing.T) {
	cal, err := ParseCalendar("second=0\nminute=30\nhour=14\ntimezone=UTC")
	require.NoError(t, err)

	after := time.Date(2026, time.August, 24, 10, 0, 0, 0, time.UTC)
	next, ok := cal.Next(after)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.August, 24, 14, 30, 0, 0, time.UTC), next)

	// past today's slot, the next day is picked
	next, ok = cal.Next(time.Date(2026, time.August, 24, 15, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.August, 25, 14, 30, 0, 0, time.UTC), next)
}

func TestCalendarYearFilter(t *testing.T) {
	cal, err := ParseCalendar("second=0\nminute=0\nhour=0\ndayOfMonth=1\nmonth=1\nyear=2028\ntimezone=UTC")
	require.NoError(t, err)

	next, ok := cal.Next(time.Date(2026, time.August, 24, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, 2028, next.Year())
}

func TestCalendarBounds(t *testing.T) {
	cal, err := ParseCalendar("minute=*\ntimezone=UTC\nstart=2026-09-01\nend=2026-09-02")
	require.NoError(t, err)

	// before the window, the first fire is at the start bound
	next, ok := cal.Next(time.Date(2026, time.August, 24, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.False(t, next.Before(time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)))

	// past the end bound the schedule is exhausted
	_, ok = cal.Next(time.Date(2026, time.September, 3, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}
