package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/integrations/internal/domain"
	"github.com/pscheid92/integrations/internal/platform/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRemoteAddr = "1.2.3.4:1234"

func TestRateLimiterAllowsRequestsUnderLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	e := echo.New()
	mw := newRateLimiter(10, 3) // 10 req/s, burst 3

	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = testRemoteAddr
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		require.NoError(t, callHandler(srv, handler, c))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiterBlocksExcessiveRequests(t *testing.T) {
	srv, _ := newTestServer(t)
	e := echo.New()
	mw := newRateLimiter(0.01, 1) // very low rate, burst 1

	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	// First request: allowed (burst)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = testRemoteAddr
	rec := httptest.NewRecorder()
	require.NoError(t, callHandler(srv, handler, e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Second request: denied
	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = testRemoteAddr
	rec = httptest.NewRecorder()
	require.NoError(t, callHandler(srv, handler, e.NewContext(req, rec)))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apperrors.TypeRateLimited, resp.Type)
}

func TestRateLimiterKeysOnUser(t *testing.T) {
	srv, _ := newTestServer(t)
	e := echo.New()
	mw := newRateLimiter(0.01, 1)

	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	// Two users behind the same address each get their own bucket.
	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = testRemoteAddr
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set(contextKeyUserID, uuid.New())

		require.NoError(t, callHandler(srv, handler, c))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitIdentifier(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = testRemoteAddr
	c := e.NewContext(req, httptest.NewRecorder())

	id, err := rateLimitIdentifier(c)
	require.NoError(t, err)
	assert.Equal(t, "ip:1.2.3.4", id)

	userID := uuid.New()
	c.Set(contextKeyUserID, userID)
	id, err = rateLimitIdentifier(c)
	require.NoError(t, err)
	assert.Equal(t, "user:"+userID.String(), id)
}

func TestRateLimiter_OAuthRouteReturns429ThroughServer(t *testing.T) {
	provider := &mockProvider{name: domain.ProviderVercel}
	srv, _ := newTestServer(t, withIntegration(domain.ProviderVercel, Integration{Provider: provider}))

	var rec *httptest.ResponseRecorder
	for range oauthBurst + 2 {
		req := httptest.NewRequest(http.MethodGet, "/integrations/vercel/connect", nil)
		req.RemoteAddr = testRemoteAddr
		rec = httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)
	}

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apperrors.TypeRateLimited, resp.Type)
	assert.Equal(t, "rate limit exceeded", resp.Error)
}
