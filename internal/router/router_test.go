package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/restaurant-reservation/internal/booking"
	"github.com/iliyamo/restaurant-reservation/internal/handler"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
)

func newTestEcho() *echo.Echo {
	store := repository.NewMemoryStore()
	e := echo.New()
	RegisterRoutes(e, nil)
	RegisterReservations(e, handler.NewReservationHandler(booking.NewController(store), store), "secret", Throttling{})
	RegisterAdmin(e, handler.NewAdminPolicyHandler(store), "secret")
	return e
}

func TestRoutesRegistered(t *testing.T) {
	e := newTestEcho()

	got := map[string]bool{}
	for _, r := range e.Routes() {
		got[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		http.MethodGet + " /healthz",
		http.MethodGet + " /readyz",
		http.MethodPost + " /v1/reservations",
		http.MethodGet + " /v1/availability",
		http.MethodGet + " /v1/my-reservations",
		http.MethodGet + " /v1/reservations/:id",
		http.MethodPut + " /v1/reservations/:id",
		http.MethodDelete + " /v1/reservations/:id",
		http.MethodGet + " /v1/admin/policy",
		http.MethodPut + " /v1/admin/policy",
	} {
		assert.True(t, got[want], want)
	}
}

func TestUnknownPathsAreNotFound(t *testing.T) {
	e := newTestEcho()

	for _, target := range []string{"/v1/typo", "/v1/reservations/abc/extra", "/nope"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}

	// Known paths still demand a token.
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/my-reservations", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
