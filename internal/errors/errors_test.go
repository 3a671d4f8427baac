package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratewatch/ratewatch/internal/server/middleware"
)

func TestHTTPStatusFromCode(t *testing.T) {
	cases := map[string]int{
		"INVALID_INPUT":          http.StatusBadRequest,
		"VALIDATION_FAILED":      http.StatusBadRequest,
		"NOT_FOUND":              http.StatusNotFound,
		"FORBIDDEN":              http.StatusForbidden,
		"COLLECTOR_DISABLED":     http.StatusConflict,
		"UNKNOWN_UPSTREAM":       http.StatusNotFound,
		"TIMEOUT":                http.StatusGatewayTimeout,
		"EXTERNAL_SERVICE_ERROR": http.StatusBadGateway,
		"SERVICE_UNAVAILABLE":    http.StatusServiceUnavailable,
		"CONFIG_INVALID":         http.StatusInternalServerError,
		"SOMETHING_ELSE":         http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromEnvelope(nil))
}

func TestWrapUsesRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDContextKey, "req-123")
	env := WrapServiceUnavailable(ctx, stderrors.New("store closed"), "store unavailable")

	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Code)
	assert.Equal(t, "req-123", env.CorrelationID)
	assert.Equal(t, "req-123", env.TraceID)
	assert.Equal(t, "store closed", env.Context["wrapped_error"])
}

func TestEnsureEnvelope(t *testing.T) {
	env := NewCollectorDisabledError("collector disabled")
	assert.Same(t, env, EnsureEnvelope(env))

	wrapped := EnsureEnvelope(stderrors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", wrapped.Code)
	assert.Equal(t, "boom", wrapped.Context["wrapped_error"])

	assert.Equal(t, "INTERNAL_ERROR", EnsureEnvelope(nil).Code)
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ratelimits", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDContextKey, "req-9"))
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, NewForbiddenError("origin not allowed"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "FORBIDDEN", body.Error.Code)
	assert.Equal(t, "origin not allowed", body.Error.Message)
	assert.Equal(t, "req-9", body.Error.RequestID)
}
