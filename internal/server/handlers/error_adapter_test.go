package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratewatch/ratewatch/internal/collector"
	apperrors "github.com/ratewatch/ratewatch/internal/errors"
	"github.com/ratewatch/ratewatch/internal/tracker"
)

func TestRespondWithErrorTranslatesSentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"collector disabled", collector.ErrDisabled, http.StatusConflict, apperrors.CodeCollectorDisabled},
		{"invalid endpoint", fmt.Errorf("update: %w", tracker.ErrInvalidEndpoint), http.StatusBadRequest, apperrors.CodeInvalidInput},
		{"closed", tracker.ErrClosed, http.StatusServiceUnavailable, apperrors.CodeServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, apperrors.CodeInternal},
		{"envelope", apperrors.NewForbiddenError("nope"), http.StatusForbidden, apperrors.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/collector", nil)
			rec := httptest.NewRecorder()

			respondWithError(rec, req, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body apperrors.HTTPErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestSetHTTPErrorResponder(t *testing.T) {
	t.Cleanup(func() { SetHTTPErrorResponder(nil) })

	var got error
	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	respondWithError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tracker.ErrClosed)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	envelope, ok := got.(*gferrors.ErrorEnvelope)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeServiceUnavailable, envelope.Code)
}
