package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecurrence(t *testing.T) {
	tests := []struct {
		name    string
		weekday string
		date    string
		want    Recurrence
		wantErr bool
	}{
		{name: "weekday canonicalised", weekday: " tuesday ", want: Recurrence{Kind: RecurrenceWeekly, Weekday: "Tuesday"}},
		{name: "date", date: "2024-12-31", want: Recurrence{Kind: RecurrenceDated, Date: "2024-12-31"}},
		{name: "both", weekday: "Monday", date: "2024-12-31", wantErr: true},
		{name: "neither", wantErr: true},
		{name: "bad weekday", weekday: "Mon", wantErr: true},
		{name: "bad date", date: "31/12/2024", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewRecurrence(tt.weekday, tt.date)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWeekdayNumbering(t *testing.T) {
	n, ok := WeekdayNumber("Monday")
	require.True(t, ok)
	assert.Equal(t, 1, n)

	label, ok := WeekdayLabel(7)
	require.True(t, ok)
	assert.Equal(t, "Sunday", label)

	_, ok = WeekdayLabel(0)
	assert.False(t, ok)
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, m)

	for _, bad := range []string{"9:30", "24:00", "12:60", "", "12:3a"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, SessionCompleted.Terminal())
	assert.True(t, SessionCanceled.Terminal())
	assert.False(t, SessionActive.Terminal())
	assert.True(t, SlotWithdrawn.Valid())
	assert.False(t, SlotStatus("booked").Valid())
}
