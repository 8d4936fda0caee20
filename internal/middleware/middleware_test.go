package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/auth"
	"github.com/example/forwardly/internal/logging"
	"github.com/example/forwardly/internal/models"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("bad"), http.StatusBadRequest},
		{apperr.ErrInvalidOTP, http.StatusBadRequest},
		{apperr.Unauthenticated("no"), http.StatusUnauthorized},
		{apperr.ErrInvalidRefreshToken, http.StatusUnauthorized},
		{apperr.Forbidden("no"), http.StatusForbidden},
		{apperr.NotFound("package"), http.StatusNotFound},
		{apperr.Conflict("taken"), http.StatusConflict},
		{apperr.ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("wrapped: %w", apperr.NotFound("user")), http.StatusNotFound},
		{fiber.NewError(http.StatusMethodNotAllowed, "nope"), http.StatusMethodNotAllowed},
		{apperr.Upstream("store", errors.New("disk full")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusOf(tc.err), tc.err.Error())
	}
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestErrorHandlerHidesInternalDetail(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/upstream", func(*fiber.Ctx) error {
		return apperr.Upstream("load user", errors.New("dial tcp 10.0.0.1:5432: refused"))
	})
	app.Get("/conflict", func(*fiber.Ctx) error {
		return apperr.Conflict("phone already registered")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/upstream", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"success": false, "error": "internal server error"}, decode(t, resp))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/conflict", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "phone already registered", decode(t, resp)["error"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type stubCounter struct {
	counts map[string]int64
	err    error
}

func (s *stubCounter) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s.err != nil {
		return 0, 0, s.err
	}
	s.counts[key]++
	return s.counts[key], window, nil
}

func TestRateLimit(t *testing.T) {
	counter := &stubCounter{counts: map[string]int64{}}
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/a", RateLimit(counter, "a", 2, time.Minute, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})
	app.Get("/b", RateLimit(counter, "b", 2, time.Minute, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})

	for i, remaining := range []string{"1", "0"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/a", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode, "request %d", i)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
		assert.Equal(t, remaining, resp.Header.Get("X-RateLimit-Remaining"))
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/a", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get(fiber.HeaderRetryAfter))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/b", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "scopes are counted separately")
}

func TestRateLimitFailsOpen(t *testing.T) {
	counter := &stubCounter{err: errors.New("redis: connection refused")}
	app := fiber.New()
	app.Get("/", RateLimit(counter, "x", 1, time.Minute, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
}

type stubResolver map[string]auth.Principal

func (s stubResolver) Resolve(_ context.Context, token string) (auth.Principal, error) {
	p, ok := s[token]
	if !ok {
		return auth.Principal{}, apperr.Unauthenticated("invalid token")
	}
	return p, nil
}

type stubUsers map[uuid.UUID]*models.User

func (s stubUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user")
}

func TestRequireAuthAndAdmin(t *testing.T) {
	adminID, customerID, ghostID := uuid.New(), uuid.New(), uuid.New()
	resolver := stubResolver{
		"admin":    {UserID: adminID, SessionID: uuid.New()},
		"customer": {UserID: customerID, SessionID: uuid.New()},
		"ghost":    {UserID: ghostID},
	}
	users := stubUsers{
		adminID:    {BaseModel: models.BaseModel{ID: adminID}, Role: models.RoleAdmin},
		customerID: {BaseModel: models.BaseModel{ID: customerID}, Role: models.RoleCustomer},
	}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/me", RequireAuth(resolver), func(c *fiber.Ctx) error {
		id, ok := GetCurrentUserID(c)
		if !ok {
			return apperr.Unauthenticated("no user")
		}
		return c.SendString(id.String())
	})
	app.Get("/admin", RequireAuth(resolver), RequireAdmin(users), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Token customer", http.StatusUnauthorized},
		{"empty bearer", "/me", "Bearer   ", http.StatusUnauthorized},
		{"unknown token", "/me", "Bearer nope", http.StatusUnauthorized},
		{"lowercase scheme", "/me", "bearer customer", http.StatusOK},
		{"customer on admin", "/admin", "Bearer customer", http.StatusForbidden},
		{"deleted user on admin", "/admin", "Bearer ghost", http.StatusUnauthorized},
		{"admin", "/admin", "Bearer admin", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}
