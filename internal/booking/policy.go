package booking

import (
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// Defaults applied when no policy row exists yet.
const (
	DefaultMaxDailyCapacity    = 50
	DefaultMaxTimeSlotCapacity = 20
	DefaultAdvanceBookingDays  = 30
)

// Static validation bounds for a candidate reservation.
const (
	MinGuests     = 1
	MaxGuests     = 10
	MaxNameLength = 255
)

// SlotDuration is the width of a time-slot window.
const SlotDuration = 2 * time.Hour

// DefaultPolicy returns the policy a store must create when the
// singleton row is missing.
func DefaultPolicy() model.Policy {
	return model.Policy{
		MaxDailyCapacity:    DefaultMaxDailyCapacity,
		MaxTimeSlotCapacity: DefaultMaxTimeSlotCapacity,
		AdvanceBookingDays:  DefaultAdvanceBookingDays,
	}
}

// BookingHorizon returns the latest admissible start instant for a
// submission evaluated at now.  The horizon is inclusive: a start instant
// equal to it is accepted.  Days are calendar days in loc, so a DST
// change inside the horizon does not shift it by an hour.
func BookingHorizon(p model.Policy, now time.Time, loc *time.Location) time.Time {
	return now.In(loc).AddDate(0, 0, p.AdvanceBookingDays)
}

// remaining returns max(0, limit-load).
func remaining(limit, load int) int {
	if load >= limit {
		return 0
	}
	return limit - load
}
