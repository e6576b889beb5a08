// Package router wires handlers and middleware onto the Echo instance.
package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/restaurant-reservation/internal/config"
	"github.com/iliyamo/restaurant-reservation/internal/handler"
	"github.com/iliyamo/restaurant-reservation/internal/middleware"
	"github.com/iliyamo/restaurant-reservation/internal/utils"
)

// RegisterRoutes registers the unauthenticated health checks.
func RegisterRoutes(e *echo.Echo, store handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(store))
}

// Throttling holds the Redis-backed limits applied to public endpoints.
// A nil Redis client disables both.
type Throttling struct {
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Logger    *slog.Logger
}

// RegisterReservations registers the reservation endpoints.  Submission
// accepts anonymous callers and is rate limited; availability is public
// and cached; the rest require a token.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, t Throttling) {
	e.POST("/v1/reservations", h.Create,
		middleware.OptionalJWT(jwtSecret),
		middleware.NewTokenBucket(t.RateLimit, t.Redis, t.Logger),
	)
	e.GET("/v1/availability", h.Availability, middleware.NewRedisCache(t.Cache, t.Redis, t.Logger))

	// Per route rather than a /v1 group, so unknown paths stay 404.
	auth := middleware.JWTAuth(jwtSecret)
	e.GET("/v1/my-reservations", h.ListMine, auth)
	e.GET("/v1/reservations/:id", h.Get, auth)
	e.PUT("/v1/reservations/:id", h.Update, auth)
	e.DELETE("/v1/reservations/:id", h.Cancel, auth)
}

// RegisterAdmin registers policy management for the ADMIN role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminPolicyHandler, jwtSecret string) {
	g := e.Group("/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleAdmin),
	)
	g.GET("/policy", h.Get)
	g.PUT("/policy", h.Update)
}
