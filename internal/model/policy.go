package model

import "time"

// Policy mirrors the single row of the restaurant_policy table.  It
// carries the capacity limits and the advance-booking horizon that
// govern admission.  Exactly one row exists (id = 1); it is read under
// an exclusive lock for every admission decision and is never cached
// across requests.
type Policy struct {
	MaxDailyCapacity    int       `db:"max_daily_capacity"`
	MaxTimeSlotCapacity int       `db:"max_time_slot_capacity"`
	AdvanceBookingDays  int       `db:"advance_booking_days"`
	UpdatedAt           time.Time `db:"updated_at"`
}
