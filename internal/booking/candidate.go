package booking

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Candidate is a reservation request that has not been admitted yet.
type Candidate struct {
	OwnerID    *string
	Name       string
	GuestCount int
	StartsAt   time.Time
}

// normalized returns the candidate as it will be stored: trimmed name,
// start instant in UTC at microsecond precision.
func (c Candidate) normalized() Candidate {
	out := c
	out.Name = strings.TrimSpace(c.Name)
	out.StartsAt = c.StartsAt.UTC().Truncate(time.Microsecond)
	if c.OwnerID != nil {
		owner := strings.TrimSpace(*c.OwnerID)
		if owner == "" {
			out.OwnerID = nil
		} else {
			out.OwnerID = &owner
		}
	}
	return out
}

// Validate applies the static field rules.  Checks run in a fixed order
// (start instant, guest count, name) and the first failure is returned.
func (c Candidate) Validate(now time.Time) *AdmissionError {
	if err := validateStartsAt(c.StartsAt, now); err != nil {
		return err
	}
	switch {
	case c.GuestCount < MinGuests:
		return reject(KindInvalidGuestCount, "guest_count", fmt.Sprintf("Number of guests must be at least %d.", MinGuests))
	case c.GuestCount > MaxGuests:
		return reject(KindInvalidGuestCount, "guest_count", fmt.Sprintf("Maximum %d guests per booking.", MaxGuests))
	}
	name := strings.TrimSpace(c.Name)
	switch {
	case name == "":
		return reject(KindInvalidName, "name", "Name is required.")
	case utf8.RuneCountInString(name) > MaxNameLength:
		return reject(KindInvalidName, "name", fmt.Sprintf("Name must be at most %d characters.", MaxNameLength))
	}
	return nil
}

func validateStartsAt(startsAt, now time.Time) *AdmissionError {
	if startsAt.IsZero() || !startsAt.After(now) {
		return reject(KindInvalidDate, "starts_at", "Booking must be for a future date and time.")
	}
	return nil
}

func validateAdvanceWindow(startsAt time.Time, days int, horizon time.Time) *AdmissionError {
	if startsAt.After(horizon) {
		return reject(KindAdvanceWindowExceeded, "starts_at",
			fmt.Sprintf("Bookings can only be made up to %d days in advance.", days))
	}
	return nil
}
