package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-reservation/internal/config"
	"github.com/iliyamo/restaurant-reservation/internal/logging"
)

const testSecret = "test-secret"

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func validClaims(sub any, role string) jwt.MapClaims {
	return jwt.MapClaims{"sub": sub, "role": role, "exp": time.Now().Add(time.Hour).Unix()}
}

// serve runs mw in front of a handler that echoes the identity it sees.
func serve(t *testing.T, mw echo.MiddlewareFunc, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.GET("/", func(c echo.Context) error {
		role, _ := c.Get(ContextRole).(string)
		return c.JSON(http.StatusOK, echo.Map{"user_id": UserID(c), "role": role})
	}, mw)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set(echo.HeaderAuthorization, authorization)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing bearer token"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "missing bearer token"},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized, "invalid token"},
		{"wrong secret", "Bearer " + signed(t, "other", validClaims("u-1", "CUSTOMER")), http.StatusUnauthorized, "invalid token"},
		{"expired", "Bearer " + signed(t, testSecret, jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized, "invalid token"},
		{"no subject", "Bearer " + signed(t, testSecret, jwt.MapClaims{"role": "ADMIN"}), http.StatusUnauthorized, "invalid token"},
		{"string subject", "Bearer " + signed(t, testSecret, validClaims("u-1", "CUSTOMER")), http.StatusOK, `"user_id":"u-1"`},
		{"numeric subject", "Bearer " + signed(t, testSecret, validClaims(42, "ADMIN")), http.StatusOK, `"user_id":"42"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, JWTAuth(testSecret), tt.header)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestOptionalJWT(t *testing.T) {
	rec := serve(t, OptionalJWT(testSecret), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":""`)

	rec = serve(t, OptionalJWT(testSecret), "Bearer "+signed(t, testSecret, validClaims("u-7", "CUSTOMER")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":"u-7"`)

	rec = serve(t, OptionalJWT(testSecret), "Bearer broken")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		JWTAuth(testSecret), RequireRole("ADMIN"))

	do := func(role string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+signed(t, testSecret, validClaims("u-1", role)))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNoContent, do("ADMIN"))
	assert.Equal(t, http.StatusForbidden, do("CUSTOMER"))
	assert.Equal(t, http.StatusForbidden, do(""))
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/reservations", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/reservations")

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_user"}
	assert.Equal(t, "rl:ip:10.0.0.1:user:anon", buildRateKey(cfg, c))

	c.Set(ContextUserID, "u-1")
	cfg.KeyStrategy = "user_route"
	assert.Equal(t, "rl:user:u-1:route:POST /v1/reservations", buildRateKey(cfg, c))
	cfg.KeyStrategy = ""
	assert.Equal(t, "rl:ip:10.0.0.1:user:u-1:route:POST /v1/reservations", buildRateKey(cfg, c))
}

func TestDisabledMiddlewarePassThrough(t *testing.T) {
	logger := logging.NewWithWriter(&bytes.Buffer{}, "info", "text")
	for name, mw := range map[string]echo.MiddlewareFunc{
		"rate limit disabled": NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil, logger),
		"rate limit no redis": NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, logger),
		"cache no redis":      NewRedisCache(config.CacheConfig{Enabled: true}, nil, logger),
	} {
		t.Run(name, func(t *testing.T) {
			rec := serve(t, mw, "")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Header().Get("X-Cache"))
			assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
		})
	}
}

func TestCachePayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	require.NoError(t, err)

	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, string(body))

	_, _, _, ok = decodePayload(bs[:5])
	assert.False(t, ok)
	_, _, _, ok = decodePayload(append([]byte{0, 0, 0, 200, 0, 0, 1, 0}, 'x'))
	assert.False(t, ok, "header length beyond the payload")
}

func TestCacheKeyIgnoresQueryOnlyWhenAsked(t *testing.T) {
	e := echo.New()
	ctx := func(target string) echo.Context {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/v1/availability")
		return c
	}
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
	a := cacheKeyFrom(cfg, ctx("/v1/availability?at=2026-01-02T19:00:00Z"))
	b := cacheKeyFrom(cfg, ctx("/v1/availability?at=2026-01-02T21:00:00Z"))
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^cache:[0-9a-f]{40}$`, a)

	cfg.KeyStrategy = "route"
	assert.Equal(t,
		cacheKeyFrom(cfg, ctx("/v1/availability?at=2026-01-02T19:00:00Z")),
		cacheKeyFrom(cfg, ctx("/v1/availability?at=2026-01-02T21:00:00Z")))
}

func TestRequestLoggerAttachesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, "info", "json")

	e := echo.New()
	var seen *slog.Logger
	e.GET("/ping", func(c echo.Context) error {
		seen = logging.FromContext(c.Request().Context())
		return c.String(http.StatusTeapot, "pong")
	}, RequestLogger(logger))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.NotNil(t, seen)
	assert.Contains(t, buf.String(), `"msg":"request"`)
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"uri":"/ping"`)
}
