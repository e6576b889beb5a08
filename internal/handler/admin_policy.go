package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/booking"
	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// PolicyRepository reads and replaces the singleton restaurant policy.
type PolicyRepository interface {
	CurrentPolicy(ctx context.Context) (model.Policy, bool, error)
	UpdatePolicy(ctx context.Context, p model.Policy) (model.Policy, error)
}

// AdminPolicyHandler lets administrators tune capacity limits.
type AdminPolicyHandler struct {
	Repo PolicyRepository
}

func NewAdminPolicyHandler(repo PolicyRepository) *AdminPolicyHandler {
	if repo == nil {
		panic("nil repository passed to NewAdminPolicyHandler")
	}
	return &AdminPolicyHandler{Repo: repo}
}

type policyRequest struct {
	MaxDailyCapacity    *int `json:"max_daily_capacity"`
	MaxTimeSlotCapacity *int `json:"max_time_slot_capacity"`
	AdvanceBookingDays  *int `json:"advance_booking_days"`
}

type policyResponse struct {
	MaxDailyCapacity    int        `json:"max_daily_capacity"`
	MaxTimeSlotCapacity int        `json:"max_time_slot_capacity"`
	AdvanceBookingDays  int        `json:"advance_booking_days"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
	Default             bool       `json:"default"`
}

func toPolicyResponse(p model.Policy, isDefault bool) policyResponse {
	out := policyResponse{
		MaxDailyCapacity:    p.MaxDailyCapacity,
		MaxTimeSlotCapacity: p.MaxTimeSlotCapacity,
		AdvanceBookingDays:  p.AdvanceBookingDays,
		Default:             isDefault,
	}
	if !p.UpdatedAt.IsZero() {
		at := p.UpdatedAt.UTC()
		out.UpdatedAt = &at
	}
	return out
}

// Get handles GET /v1/admin/policy.  Until the row exists the defaults
// that the first admission would create are reported.
func (h *AdminPolicyHandler) Get(c echo.Context) error {
	p, found, err := h.Repo.CurrentPolicy(c.Request().Context())
	if err != nil {
		return writeError(c, booking.StorageFault("read policy", err))
	}
	if !found {
		return c.JSON(http.StatusOK, toPolicyResponse(booking.DefaultPolicy(), true))
	}
	return c.JSON(http.StatusOK, toPolicyResponse(p, false))
}

// Update handles PUT /v1/admin/policy.  All three limits are required
// and must be non-negative.  Lowering a limit never touches existing
// reservations; it only affects later admissions.
func (h *AdminPolicyHandler) Update(c echo.Context) error {
	var body policyRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	fields := map[string]*int{
		"max_daily_capacity":     body.MaxDailyCapacity,
		"max_time_slot_capacity": body.MaxTimeSlotCapacity,
		"advance_booking_days":   body.AdvanceBookingDays,
	}
	for _, name := range []string{"max_daily_capacity", "max_time_slot_capacity", "advance_booking_days"} {
		v := fields[name]
		if v == nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": name + " is required", "field": name})
		}
		if *v < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": name + " must not be negative", "field": name})
		}
	}

	p, err := h.Repo.UpdatePolicy(c.Request().Context(), model.Policy{
		MaxDailyCapacity:    *body.MaxDailyCapacity,
		MaxTimeSlotCapacity: *body.MaxTimeSlotCapacity,
		AdvanceBookingDays:  *body.AdvanceBookingDays,
	})
	if err != nil {
		return writeError(c, booking.StorageFault("update policy", err))
	}
	return c.JSON(http.StatusOK, toPolicyResponse(p, false))
}
