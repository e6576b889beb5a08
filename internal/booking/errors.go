package booking

import (
	"context"
	"errors"
	"fmt"
)

// Kind is a machine-distinguishable admission outcome.  Handlers switch
// on it to pick status codes; log lines carry it as the "kind" attribute.
type Kind string

const (
	KindInvalidName           Kind = "invalid_name"
	KindInvalidGuestCount     Kind = "invalid_guest_count"
	KindInvalidDate           Kind = "invalid_date"
	KindAdvanceWindowExceeded Kind = "advance_window_exceeded"
	KindDailyCapacityExceeded Kind = "daily_capacity_exceeded"
	KindSlotCapacityExceeded  Kind = "slot_capacity_exceeded"
	KindDuplicateBooking      Kind = "duplicate_booking"
	KindStorageUnavailable    Kind = "storage_unavailable"

	// Labels for errors about an existing reservation.  They never appear
	// on an AdmissionError.
	KindNotFound      Kind = "not_found"
	KindNotOwner      Kind = "not_owner"
	KindNotModifiable Kind = "not_modifiable"
)

// Sentinel errors, one per kind.  Use with errors.Is; *AdmissionError
// unwraps to the sentinel of its kind.
var (
	ErrInvalidName           = errors.New("invalid name")
	ErrInvalidGuestCount     = errors.New("invalid guest count")
	ErrInvalidDate           = errors.New("invalid date")
	ErrAdvanceWindowExceeded = errors.New("advance booking window exceeded")
	ErrDailyCapacityExceeded = errors.New("daily capacity exceeded")
	ErrSlotCapacityExceeded  = errors.New("time slot capacity exceeded")
	ErrDuplicateBooking      = errors.New("duplicate booking")

	// ErrStorageUnavailable marks infrastructure faults: connection loss,
	// lock wait timeouts, deadlocks, serialization failures.  No admission
	// decision was made, so these are the only retryable errors.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrUniqueViolation must be returned by Tx.InsertReservation and
	// Tx.UpdateReservation when the (owner, start instant) uniqueness
	// constraint rejects the row.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// Errors about an existing reservation, shared by every store.
	ErrReservationNotFound = errors.New("not found")
	ErrNotOwner            = errors.New("forbidden")
	ErrNotModifiable       = errors.New("conflict")
)

var sentinels = map[Kind]error{
	KindInvalidName:           ErrInvalidName,
	KindInvalidGuestCount:     ErrInvalidGuestCount,
	KindInvalidDate:           ErrInvalidDate,
	KindAdvanceWindowExceeded: ErrAdvanceWindowExceeded,
	KindDailyCapacityExceeded: ErrDailyCapacityExceeded,
	KindSlotCapacityExceeded:  ErrSlotCapacityExceeded,
	KindDuplicateBooking:      ErrDuplicateBooking,
}

// AdmissionError is the structured rejection returned by Controller.Submit.
// It is an expected outcome, not a fault: the caller corrects the input or
// picks another slot.  Available is only meaningful for the two capacity
// kinds and is never negative.
type AdmissionError struct {
	Kind      Kind
	Field     string
	Message   string
	Available int
}

func (e *AdmissionError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AdmissionError) Unwrap() error {
	return sentinels[e.Kind]
}

// IsCapacity reports whether the rejection is one of the capacity kinds.
func (e *AdmissionError) IsCapacity() bool {
	return e.Kind == KindDailyCapacityExceeded || e.Kind == KindSlotCapacityExceeded
}

func reject(kind Kind, field, msg string) *AdmissionError {
	return &AdmissionError{Kind: kind, Field: field, Message: msg}
}

// StorageFault wraps a store error so that it matches ErrStorageUnavailable
// while keeping the driver error reachable for errors.As.  Context errors
// are only annotated: a cancelled caller is not a storage fault.
func StorageFault(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) || isContextErr(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// AsAdmissionError extracts the structured rejection from err, if any.
func AsAdmissionError(err error) (*AdmissionError, bool) {
	var aErr *AdmissionError
	if errors.As(err, &aErr) {
		return aErr, true
	}
	return nil, false
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// IsClientError returns true if the error is due to the candidate itself,
// to the current state of the ledger, or to the reservation being changed.
func IsClientError(err error) bool {
	if _, ok := AsAdmissionError(err); ok {
		return true
	}
	return errors.Is(err, ErrReservationNotFound) ||
		errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrNotModifiable)
}

// ErrorKind maps err to a stable logging label.
func ErrorKind(err error) Kind {
	if err == nil {
		return ""
	}
	if aErr, ok := AsAdmissionError(err); ok {
		return aErr.Kind
	}
	switch {
	case errors.Is(err, ErrReservationNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotOwner):
		return KindNotOwner
	case errors.Is(err, ErrNotModifiable):
		return KindNotModifiable
	case errors.Is(err, ErrStorageUnavailable):
		return KindStorageUnavailable
	}
	return "unexpected"
}
