package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type windowResponse struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Booked    int       `json:"booked"`
	Capacity  int       `json:"capacity"`
	Remaining int       `json:"remaining"`
}

// Availability handles GET /v1/availability?at=RFC3339.  The figures are
// advisory; a later submission may still be rejected.
func (h *ReservationHandler) Availability(c echo.Context) error {
	raw := c.QueryParam("at")
	if raw == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at is required"})
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at must be an RFC3339 timestamp"})
	}

	a, p, err := h.Admission.Availability(c.Request().Context(), at)
	if err != nil {
		return writeError(c, err)
	}
	loc := h.Admission.Location()
	return c.JSON(http.StatusOK, echo.Map{
		"at":       at.In(loc),
		"timezone": loc.String(),
		"slot": windowResponse{
			Start: a.Slot.Start, End: a.Slot.End,
			Booked: a.SlotBooked, Capacity: p.MaxTimeSlotCapacity, Remaining: a.SlotRemaining,
		},
		"day": windowResponse{
			Start: a.Day.Start, End: a.Day.End,
			Booked: a.DayBooked, Capacity: p.MaxDailyCapacity, Remaining: a.DayRemaining,
		},
		"advance_booking_days": p.AdvanceBookingDays,
	})
}
