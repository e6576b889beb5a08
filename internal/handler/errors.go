package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/booking"
	"github.com/iliyamo/restaurant-reservation/internal/logging"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
)

// retryAfterSeconds is advertised on 503 responses caused by storage faults.
const retryAfterSeconds = "1"

// admissionStatus picks the status code for a rejection.  Rejections that
// depend on the ledger are conflicts; the rest are bad input.
func admissionStatus(e *booking.AdmissionError) int {
	if e.IsCapacity() || e.Kind == booking.KindDuplicateBooking {
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

// writeError translates admission and repository errors into JSON
// responses.  Anything unrecognised is logged and reported as 500.
func writeError(c echo.Context, err error) error {
	if booking.IsClientError(err) {
		return writeRejection(c, err)
	}
	if booking.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		logging.With(c.Request().Context(), nil).Warn("storage unavailable", "error", err)
		c.Response().Header().Set("Retry-After", retryAfterSeconds)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage unavailable, try again"})
	}
	logging.With(c.Request().Context(), nil).Error("unexpected error", "kind", booking.ErrorKind(err), "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// writeRejection renders an error the caller can act on.
func writeRejection(c echo.Context, err error) error {
	if aErr, ok := booking.AsAdmissionError(err); ok {
		body := echo.Map{
			"error":   "reservation rejected",
			"kind":    aErr.Kind,
			"field":   aErr.Field,
			"message": aErr.Message,
		}
		if aErr.IsCapacity() {
			body["available"] = aErr.Available
		}
		return c.JSON(admissionStatus(aErr), body)
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	default:
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation already cancelled or started"})
	}
}
