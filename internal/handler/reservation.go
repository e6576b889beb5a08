package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/booking"
	"github.com/iliyamo/restaurant-reservation/internal/middleware"
	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// Admitter decides whether a reservation may be created or changed.
type Admitter interface {
	Submit(ctx context.Context, cand booking.Candidate) (model.Reservation, error)
	Reschedule(ctx context.Context, id, ownerID string, cand booking.Candidate) (model.Reservation, error)
	Availability(ctx context.Context, at time.Time) (booking.Availability, model.Policy, error)
	Location() *time.Location
}

// ReservationRepository reads and cancels existing reservations.
type ReservationRepository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]model.Reservation, error)
	GetByID(ctx context.Context, id string) (model.Reservation, error)
	Cancel(ctx context.Context, id, ownerID string, now time.Time) (model.Reservation, error)
}

// ReservationHandler serves the reservation endpoints.  Creation goes
// through the admission controller; everything else is plain reads and a
// status update.
type ReservationHandler struct {
	Admission Admitter
	Repo      ReservationRepository
	Now       func() time.Time
}

func NewReservationHandler(admission Admitter, repo ReservationRepository) *ReservationHandler {
	if admission == nil || repo == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Admission: admission, Repo: repo, Now: time.Now}
}

type createReservationRequest struct {
	Name       string    `json:"name"`
	GuestCount int       `json:"guest_count"`
	StartsAt   time.Time `json:"starts_at"`
}

type reservationResponse struct {
	ID         string    `json:"id"`
	OwnerID    *string   `json:"owner_id,omitempty"`
	Name       string    `json:"name"`
	GuestCount int       `json:"guest_count"`
	StartsAt   time.Time `json:"starts_at"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// toResponse renders start times in the restaurant zone.
func toResponse(r model.Reservation, loc *time.Location) reservationResponse {
	return reservationResponse{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Name:       r.Name,
		GuestCount: r.GuestCount,
		StartsAt:   r.StartsAt.In(loc),
		Status:     r.Status,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

// Create handles POST /v1/reservations.  Authenticated callers own the
// reservation; anonymous ones create an unowned reservation.
func (h *ReservationHandler) Create(c echo.Context) error {
	var body createReservationRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	cand := booking.Candidate{
		Name:       body.Name,
		GuestCount: body.GuestCount,
		StartsAt:   body.StartsAt,
	}
	if uid := middleware.UserID(c); uid != "" {
		cand.OwnerID = &uid
	}

	res, err := h.Admission.Submit(c.Request().Context(), cand)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toResponse(res, h.Admission.Location()))
}

// ListMine handles GET /v1/my-reservations.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	rs, err := h.Repo.ListByOwner(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	loc := h.Admission.Location()
	out := make([]reservationResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, toResponse(r, loc))
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out})
}

// Get handles GET /v1/reservations/:id.  Only the owner may read it.
func (h *ReservationHandler) Get(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	r, err := h.Repo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if !r.OwnedBy(uid) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, toResponse(r, h.Admission.Location()))
}

// Update handles PUT /v1/reservations/:id.  The owner may change the
// name, party size and start; the change is admitted like a new booking
// with the reservation's own guests left out.
func (h *ReservationHandler) Update(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createReservationRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	cand := booking.Candidate{
		Name:       body.Name,
		GuestCount: body.GuestCount,
		StartsAt:   body.StartsAt,
	}

	res, err := h.Admission.Reschedule(c.Request().Context(), c.Param("id"), uid, cand)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(res, h.Admission.Location()))
}

// Cancel handles DELETE /v1/reservations/:id.  The row is kept with
// status CANCELLED, which releases its guests from both ledgers.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	r, err := h.Repo.Cancel(c.Request().Context(), c.Param("id"), uid, h.Now())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(r, h.Admission.Location()))
}
