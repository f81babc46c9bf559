package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartsAt_KeepsWallClockOnDSTChange(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name    string
		date    string
		start   string
		wantUTC string
	}{
		{name: "spring forward", date: "2025-03-09", start: "09:00", wantUTC: "2025-03-09T13:00:00Z"},
		{name: "fall back", date: "2025-11-02", start: "09:00", wantUTC: "2025-11-02T14:00:00Z"},
		{name: "ordinary day", date: "2025-06-02", start: "23:30", wantUTC: "2025-06-03T03:30:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appt := Appointment{Date: mustDate(t, tt.date), StartTime: tt.start}
			got, err := appt.StartsAt(ny)
			require.NoError(t, err)

			assert.Equal(t, tt.start, got.Format("15:04"))
			assert.Equal(t, tt.wantUTC, got.UTC().Format(time.RFC3339))
		})
	}
}

func TestStartsAt_RejectsBadClock(t *testing.T) {
	appt := Appointment{Date: mustDate(t, "2025-06-02"), StartTime: "9am"}
	_, err := appt.StartsAt(time.UTC)
	assert.Error(t, err)
}
