package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeeklySchedule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		sched   WeeklySchedule
		wantErr error
	}{
		{
			name: "valid",
			sched: WeeklySchedule{
				{Day: "Monday", StartTime: "09:00", EndTime: "17:00"},
				{Day: "Saturday", Closed: true},
			},
		},
		{
			name:  "runs to midnight",
			sched: WeeklySchedule{{Day: "Friday", StartTime: "22:00", EndTime: "24:00"}},
		},
		{
			name:    "midnight is not a start",
			sched:   WeeklySchedule{{Day: "Friday", StartTime: "24:00", EndTime: "24:00"}},
			wantErr: ErrInvalidClock,
		},
		{
			name:    "unknown day",
			sched:   WeeklySchedule{{Day: "Funday", StartTime: "09:00", EndTime: "17:00"}},
			wantErr: ErrInvalidWeekday,
		},
		{
			name: "duplicate day",
			sched: WeeklySchedule{
				{Day: "Monday", StartTime: "09:00", EndTime: "12:00"},
				{Day: "Monday", StartTime: "13:00", EndTime: "17:00"},
			},
			wantErr: ErrDuplicateDay,
		},
		{
			name:    "end before start",
			sched:   WeeklySchedule{{Day: "Friday", StartTime: "17:00", EndTime: "09:00"}},
			wantErr: ErrEmptyWindow,
		},
		{
			name:    "bad clock",
			sched:   WeeklySchedule{{Day: "Friday", StartTime: "9am", EndTime: "17:00"}},
			wantErr: ErrInvalidClock,
		},
		{
			name:  "closed day skips times",
			sched: WeeklySchedule{{Day: "Sunday", Closed: true, StartTime: "garbage"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sched.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("13:45")
	require.NoError(t, err)
	assert.Equal(t, 13*time.Hour+45*time.Minute, d)
	assert.Equal(t, "13:45", FormatClock(d))

	for _, bad := range []string{"", "1:45", "25:00", "12:60", "12-30", "12:30:00"} {
		_, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrInvalidClock, bad)
	}
}

func TestParseEndClock(t *testing.T) {
	d, err := ParseEndClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	d, err = ParseEndClock("17:30")
	require.NoError(t, err)
	assert.Equal(t, 17*time.Hour+30*time.Minute, d)

	for _, bad := range []string{"24:01", "24:30", "25:00"} {
		_, err := ParseEndClock(bad)
		assert.ErrorIs(t, err, ErrInvalidClock, bad)
	}
}

func TestEndOf(t *testing.T) {
	end, err := EndOf("10:30")
	require.NoError(t, err)
	assert.Equal(t, "11:00", end)

	end, err = EndOf("23:30")
	require.NoError(t, err)
	assert.Equal(t, "24:00", end)
}
