package booking

import (
	"context"
	"time"
)

// Ledger computes guest totals already committed to a slot or a day.
// It holds no state besides the restaurant zone and never writes; the
// totals are derived on every call from the reservations themselves.
type Ledger struct {
	loc *time.Location
}

// NewLedger returns a ledger that cuts days and slots in loc.  A nil loc
// means UTC.
func NewLedger(loc *time.Location) Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return Ledger{loc: loc}
}

// Location returns the zone used for day and slot boundaries.
func (l Ledger) Location() *time.Location {
	if l.loc == nil {
		return time.UTC
	}
	return l.loc
}

// TimeSlotLoad returns the guests confirmed in the slot window of instant.
func (l Ledger) TimeSlotLoad(ctx context.Context, src LedgerSource, instant time.Time) (int, error) {
	return src.SumConfirmedGuests(ctx, SlotWindow(instant, l.Location()))
}

// DailyLoad returns the guests confirmed on the calendar day of date.
func (l Ledger) DailyLoad(ctx context.Context, src LedgerSource, date time.Time) (int, error) {
	return src.SumConfirmedGuests(ctx, DayWindow(date, l.Location()))
}

// Availability is a read-only snapshot of both ledgers for one instant.
type Availability struct {
	Slot          Window
	Day           Window
	SlotBooked    int
	DayBooked     int
	SlotRemaining int
	DayRemaining  int
}

// Availability evaluates both windows of instant against the limits of
// the given capacities.  It is meant for display; admission decisions
// always recompute under the policy lock.
func (l Ledger) Availability(ctx context.Context, src LedgerSource, instant time.Time, maxDaily, maxSlot int) (Availability, error) {
	day, err := l.DailyLoad(ctx, src, instant)
	if err != nil {
		return Availability{}, err
	}
	slot, err := l.TimeSlotLoad(ctx, src, instant)
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		Slot:          SlotWindow(instant, l.Location()),
		Day:           DayWindow(instant, l.Location()),
		SlotBooked:    slot,
		DayBooked:     day,
		SlotRemaining: remaining(maxSlot, slot),
		DayRemaining:  remaining(maxDaily, day),
	}, nil
}
