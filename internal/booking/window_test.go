package booking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-reservation/internal/booking"
)

func TestSlotWindowTruncatesToTopOfHour(t *testing.T) {
	at := time.Date(2026, time.January, 2, 19, 45, 30, 123, time.UTC)

	w := booking.SlotWindow(at, time.UTC)

	assert.Equal(t, time.Date(2026, time.January, 2, 19, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, time.January, 2, 21, 0, 0, 0, time.UTC), w.End)
	assert.True(t, w.Contains(at))
	assert.True(t, w.Contains(w.Start))
	assert.False(t, w.Contains(w.End), "slot end is exclusive")
}

func TestSlotWindowUsesRestaurantZone(t *testing.T) {
	// +05:30 offsets shift the hour boundary by thirty minutes in UTC.
	kolkata := time.FixedZone("IST", 5*3600+1800)
	at := time.Date(2026, time.January, 2, 13, 45, 0, 0, time.UTC) // 19:15 local

	w := booking.SlotWindow(at, kolkata)

	assert.True(t, w.Start.Equal(time.Date(2026, time.January, 2, 19, 0, 0, 0, kolkata)))
	assert.True(t, w.Start.Equal(time.Date(2026, time.January, 2, 13, 30, 0, 0, time.UTC)))
}

func TestDayWindowIsHalfOpen(t *testing.T) {
	at := time.Date(2026, time.January, 2, 19, 0, 0, 0, time.UTC)

	w := booking.DayWindow(at, time.UTC)

	assert.Equal(t, time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, time.January, 3, 0, 0, 0, 0, time.UTC), w.End)
	assert.True(t, w.Contains(time.Date(2026, time.January, 2, 23, 59, 59, 999999000, time.UTC)))
	assert.False(t, w.Contains(w.End))
}

func TestDayWindowAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2026-03-08 has 23 hours in New York.
	at := time.Date(2026, time.March, 8, 12, 0, 0, 0, ny)

	w := booking.DayWindow(at, ny)

	require.Equal(t, 23*time.Hour, w.End.Sub(w.Start))
	assert.Equal(t, 9, w.End.In(ny).Day())
	assert.Equal(t, 0, w.End.In(ny).Hour())
}
