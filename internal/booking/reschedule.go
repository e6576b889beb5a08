package booking

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/logging"
	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// CheckModifiable holds the rules for changing or cancelling an existing
// reservation: only its owner may do it, and only while it is active and
// has not started by now.
func CheckModifiable(r model.Reservation, ownerID string, now time.Time) error {
	if !r.OwnedBy(ownerID) {
		return ErrNotOwner
	}
	if r.Status == model.StatusCancelled || !r.StartsAt.After(now) {
		return ErrNotModifiable
	}
	return nil
}

// Reschedule changes the name, party size and start instant of the
// reservation id owned by ownerID.  The change is decided under the same
// policy lock as a new booking, and the reservation's own guests are left
// out of both windows so that it never competes with itself.
//
// Besides the *AdmissionError rejections of Submit, it returns errors
// matching ErrReservationNotFound, ErrNotOwner and ErrNotModifiable.
func (c *Controller) Reschedule(ctx context.Context, id, ownerID string, cand Candidate) (model.Reservation, error) {
	cand = cand.normalized()
	cand.OwnerID = nil
	log := logging.With(ctx, c.logger, "component", "admission", "reservation_id", id, "starts_at", cand.StartsAt, "guests", cand.GuestCount)

	if err := cand.Validate(c.now()); err != nil {
		log.Info("reservation rejected", "kind", err.Kind, "field", err.Field)
		return model.Reservation{}, err
	}

	res, err := c.retry(ctx, log, func() (model.Reservation, error) { return c.reschedule(ctx, id, ownerID, cand) })
	if err != nil {
		return model.Reservation{}, err
	}
	log.Info("reservation rescheduled")
	return res, nil
}

func (c *Controller) reschedule(ctx context.Context, id, ownerID string, cand Candidate) (model.Reservation, error) {
	policy, err := c.currentPolicy(ctx)
	if err != nil {
		return model.Reservation{}, err
	}
	if aErr := validateAdvanceWindow(cand.StartsAt, policy.AdvanceBookingDays, BookingHorizon(policy, c.now(), c.Location())); aErr != nil {
		return model.Reservation{}, aErr
	}

	txCtx, cancel := c.txContext(ctx)
	defer cancel()

	var updated model.Reservation
	err = c.store.WithinTx(txCtx, func(tx Tx) error {
		// Policy before reservation, the same order as every other writer.
		locked, err := tx.LockPolicy(txCtx)
		if err != nil {
			return StorageFault("lock policy", err)
		}
		current, err := tx.LockReservation(txCtx, id)
		if err != nil {
			if errors.Is(err, ErrReservationNotFound) {
				return err
			}
			return StorageFault("lock reservation", err)
		}

		now := c.now()
		if err := CheckModifiable(current, ownerID, now); err != nil {
			return err
		}
		if aErr := validateStartsAt(cand.StartsAt, now); aErr != nil {
			return aErr
		}
		if aErr := validateAdvanceWindow(cand.StartsAt, locked.AdvanceBookingDays, BookingHorizon(locked, now, c.Location())); aErr != nil {
			return aErr
		}
		if err := c.checkCapacity(txCtx, withoutReservation{tx, current}, locked, cand, false); err != nil {
			return err
		}

		r := current
		r.Name = cand.Name
		r.GuestCount = cand.GuestCount
		r.StartsAt = cand.StartsAt
		r.UpdatedAt = now.UTC().Truncate(time.Microsecond)
		if err := tx.UpdateReservation(txCtx, r); err != nil {
			if errors.Is(err, ErrUniqueViolation) {
				return duplicateBooking()
			}
			return StorageFault("update reservation", err)
		}
		updated = r
		return nil
	})
	if err != nil {
		return model.Reservation{}, c.txError(ctx, err)
	}
	return updated, nil
}

// withoutReservation hides r from the sums of the wrapped source.
type withoutReservation struct {
	LedgerSource
	r model.Reservation
}

func (s withoutReservation) SumConfirmedGuests(ctx context.Context, w Window) (int, error) {
	total, err := s.LedgerSource.SumConfirmedGuests(ctx, w)
	if err != nil {
		return 0, err
	}
	if s.r.IsConfirmed() && w.Contains(s.r.StartsAt) {
		total -= s.r.GuestCount
	}
	return max(total, 0), nil
}
