// Package repository holds the reservation stores and the error values
// shared between them.  Handlers translate ErrNotFound, ErrForbidden and
// ErrConflict into 404, 403 and 409 responses.
package repository

import "github.com/iliyamo/restaurant-reservation/internal/booking"

// ErrNotFound is returned when the requested reservation does not exist.
var ErrNotFound = booking.ErrReservationNotFound

// ErrForbidden is returned when the caller attempts an operation
// on a reservation owned by someone else.
var ErrForbidden = booking.ErrNotOwner

// ErrConflict is returned when a cancellation or reschedule cannot be
// applied because of the reservation's state: it is already cancelled or
// has started.
var ErrConflict = booking.ErrNotModifiable
