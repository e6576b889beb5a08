package booking

import (
	"context"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// LedgerSource sums committed guests.  Both a Store and a Tx implement
// it; inside a Tx the sum must reflect every commit that happened before
// the policy lock was granted plus the transaction's own writes.
type LedgerSource interface {
	// SumConfirmedGuests returns the total GuestCount of CONFIRMED
	// reservations whose StartsAt lies in [w.Start, w.End).  Zero when
	// there are none.
	SumConfirmedGuests(ctx context.Context, w Window) (int, error)
}

// Tx is the view of the store inside one admission transaction.
type Tx interface {
	LedgerSource

	// LockPolicy takes an exclusive lock on the singleton policy row for
	// the rest of the transaction, creating it with DefaultPolicy when it
	// does not exist.  Concurrent callers on an empty table must end up
	// with one row and observe the same values.
	LockPolicy(ctx context.Context) (model.Policy, error)

	// InsertReservation persists r.  It returns an error matching
	// ErrUniqueViolation when (OwnerID, StartsAt) is already taken.
	InsertReservation(ctx context.Context, r model.Reservation) error

	// LockReservation reads the reservation row and locks it for the rest
	// of the transaction.  It returns an error matching
	// ErrReservationNotFound when no row has that id.
	LockReservation(ctx context.Context, id string) (model.Reservation, error)

	// UpdateReservation rewrites the name, guest count, start instant and
	// updated_at of the row with r.ID.  It returns an error matching
	// ErrUniqueViolation when the new (OwnerID, StartsAt) is taken by
	// another row.
	UpdateReservation(ctx context.Context, r model.Reservation) error
}

// Store is the transactional reservation store consumed by the Controller.
type Store interface {
	LedgerSource

	// CurrentPolicy reads the policy without locking.  found is false when
	// no row exists yet; nothing is created in that case.
	CurrentPolicy(ctx context.Context) (policy model.Policy, found bool, err error)

	// WithinTx runs fn inside one transaction.  The transaction commits
	// when fn returns nil and rolls back otherwise, including when ctx is
	// cancelled before the commit.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Notifier is told about reservations after they are committed.  Errors
// are logged by the Controller and never undo the admission.
type Notifier interface {
	ReservationAdmitted(ctx context.Context, r model.Reservation) error
}
