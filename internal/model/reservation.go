package model

import "time"

// Reservation statuses as stored in reservations.status.
const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
)

// Reservation records a table booking for a party at a given start
// instant.  Admission always writes CONFIRMED rows; cancellation flips
// the status to CANCELLED and never deletes the row.
//
// Fields:
//
//	ID         – opaque unique identifier (UUID string).
//	OwnerID    – principal that made the reservation (nil for anonymous).
//	Name       – display name the table is held under.
//	GuestCount – party size.
//	StartsAt   – requested start instant, stored in UTC.
//	Status     – PENDING, CONFIRMED or CANCELLED.
//	CreatedAt  – creation timestamp.
//	UpdatedAt  – last update timestamp.
type Reservation struct {
	ID         string    `db:"id"`
	OwnerID    *string   `db:"owner_id"`
	Name       string    `db:"name"`
	GuestCount int       `db:"guest_count"`
	StartsAt   time.Time `db:"starts_at"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// IsConfirmed reports whether the reservation counts against capacity.
func (r Reservation) IsConfirmed() bool { return r.Status == StatusConfirmed }

// OwnedBy reports whether ownerID made the reservation.  Anonymous
// reservations are owned by nobody.
func (r Reservation) OwnedBy(ownerID string) bool {
	return r.OwnerID != nil && ownerID != "" && *r.OwnerID == ownerID
}
