package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/page-comments/internal/ratelimit"
	"github.com/pribylovaa/page-comments/internal/service"
)

func TestToHTTP_BaseMapping(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("service/comments/X: %w", err) }

	tcs := []struct {
		name       string
		in         error
		wantStatus int
		wantCode   string
	}{
		{"invalid_argument", wrap(service.ErrInvalidArgument), http.StatusBadRequest, "invalid_argument"},
		{"invalid_cursor", wrap(service.ErrInvalidCursor), http.StatusBadRequest, "invalid_cursor"},
		{"parent_not_found", wrap(service.ErrParentNotFound), http.StatusNotFound, "parent_not_found"},
		{"not_found", wrap(service.ErrNotFound), http.StatusNotFound, "not_found"},
		{"rate_limited_bare", wrap(service.ErrRateLimited), http.StatusTooManyRequests, "rate_limited"},
		{"unavailable", wrap(service.ErrStoreUnavailable), http.StatusServiceUnavailable, "unavailable"},
		{"canceled", wrap(context.Canceled), StatusClientClosedRequest, "canceled"},
		{"deadline", wrap(context.DeadlineExceeded), http.StatusGatewayTimeout, "deadline_exceeded"},
		{"bad_request", ErrBadRequest, http.StatusBadRequest, "invalid_argument"},
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"forbidden", ErrForbidden, http.StatusForbidden, "permission_denied"},
		{"internal", wrap(service.ErrInternal), http.StatusInternalServerError, "internal"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			gotStatus, resp := ToHTTP(tc.in)
			require.Equal(t, tc.wantStatus, gotStatus)
			require.Equal(t, tc.wantCode, resp.Error.Code)
			require.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestToHTTP_NilError_Returns500Internal(t *testing.T) {
	gotStatus, resp := ToHTTP(nil)
	require.Equal(t, http.StatusInternalServerError, gotStatus)
	require.Equal(t, "internal", resp.Error.Code)
	require.Equal(t, "internal error", resp.Error.Message)
}

func TestWriteError_RateLimited(t *testing.T) {
	err := fmt.Errorf("op: %w", &service.RateLimitError{
		Scope:      ratelimit.ScopeEmail,
		RetryAfter: 270 * time.Second,
		Limit:      3,
		Reset:      270 * time.Second,
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/comments", nil)
	req.Header.Set("X-Request-Id", "rid-1")

	WriteError(rr, req, err)

	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "270", rr.Header().Get("Retry-After"))
	require.Equal(t, "3", rr.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	reset, perr := strconv.ParseInt(rr.Header().Get("X-RateLimit-Reset"), 10, 64)
	require.NoError(t, perr)
	require.InDelta(t, time.Now().Add(270*time.Second).Unix(), reset, 2)

	var env ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, "rate_limited", env.Error.Code)
	require.Equal(t, "email", env.Error.Scope)
	require.Equal(t, int64(270), env.Error.RetryAfter)
	require.Equal(t, "rid-1", env.Error.RequestID)
}

func TestWriteError_NotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/comments/1", nil)

	WriteError(rr, req, service.ErrNotFound)

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.Empty(t, rr.Header().Get("Retry-After"))

	var env ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, "not_found", env.Error.Code)
	require.Empty(t, env.Error.RequestID)
	require.Empty(t, env.Error.Scope)
}

func TestSetRateLimitHeaders_SkipsZeroLimit(t *testing.T) {
	h := http.Header{}
	SetRateLimitHeaders(h, 0, 0, time.Minute)
	require.Empty(t, h)

	SetRateLimitHeaders(h, 5, 4, time.Minute)
	require.Equal(t, "5", h.Get("X-RateLimit-Limit"))
	require.Equal(t, "4", h.Get("X-RateLimit-Remaining"))
}
