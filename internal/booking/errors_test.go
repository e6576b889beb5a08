package booking

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdmissionErrorUnwrapsToSentinel(t *testing.T) {
	err := fmt.Errorf("submit: %w", &AdmissionError{Kind: KindSlotCapacityExceeded, Message: "full", Available: 2})

	assert.ErrorIs(t, err, ErrSlotCapacityExceeded)
	assert.NotErrorIs(t, err, ErrDailyCapacityExceeded)

	aErr, ok := AsAdmissionError(err)
	assert.True(t, ok)
	assert.True(t, aErr.IsCapacity())
	assert.Equal(t, 2, aErr.Available)
	assert.Equal(t, "slot_capacity_exceeded: full", aErr.Error())
}

func TestStorageFault(t *testing.T) {
	driver := errors.New("connection reset by peer")

	err := StorageFault("lock policy", driver)

	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, driver)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsClientError(err))
	assert.Equal(t, KindStorageUnavailable, ErrorKind(err))

	// Wrapping twice does not stack the sentinel text.
	again := StorageFault("admission transaction", err)
	assert.Equal(t, "admission transaction: "+err.Error(), again.Error())

	assert.Nil(t, StorageFault("noop", nil))
}

func TestStorageFaultLeavesContextErrors(t *testing.T) {
	err := StorageFault("lock policy", context.Canceled)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRetryable(err))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, Kind(""), ErrorKind(nil))
	assert.Equal(t, KindInvalidName, ErrorKind(reject(KindInvalidName, "name", "Name is required.")))
	assert.Equal(t, Kind("unexpected"), ErrorKind(errors.New("boom")))
	assert.True(t, IsClientError(reject(KindDuplicateBooking, "starts_at", "dup")))
}

func TestReservationStateErrorsAreClientErrors(t *testing.T) {
	for err, kind := range map[error]Kind{
		ErrReservationNotFound: KindNotFound,
		ErrNotOwner:            KindNotOwner,
		ErrNotModifiable:       KindNotModifiable,
	} {
		wrapped := fmt.Errorf("lock reservation: %w", err)
		assert.True(t, IsClientError(wrapped), err.Error())
		assert.False(t, IsRetryable(wrapped), err.Error())
		assert.Equal(t, kind, ErrorKind(wrapped))
	}
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 6, remaining(10, 4))
	assert.Equal(t, 0, remaining(10, 10))
	assert.Equal(t, 0, remaining(5, 12), "never negative when the limit was lowered below the load")
}
