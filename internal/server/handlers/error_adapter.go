package handlers

import (
	"errors"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"

	"github.com/ratewatch/ratewatch/internal/collector"
	apperrors "github.com/ratewatch/ratewatch/internal/errors"
	"github.com/ratewatch/ratewatch/internal/tracker"
)

// ErrorResponder writes err as an HTTP error response.
type ErrorResponder func(http.ResponseWriter, *http.Request, error)

var httpErrorResponder ErrorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder lets the server package install its error handler.
// A nil responder restores the default.
func SetHTTPErrorResponder(responder ErrorResponder) {
	if responder == nil {
		responder = apperrors.RespondWithError
	}
	httpErrorResponder = responder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, translateError(r, err))
}

// translateError maps tracker and collector sentinels onto error envelopes.
// Envelopes pass through untouched.
func translateError(r *http.Request, err error) error {
	var envelope *gferrors.ErrorEnvelope
	if errors.As(err, &envelope) {
		return err
	}
	switch {
	case errors.Is(err, collector.ErrDisabled):
		return apperrors.NewCollectorDisabledError("collector is disabled or has no endpoint")
	case errors.Is(err, tracker.ErrInvalidEndpoint):
		return apperrors.WrapInvalidInput(r.Context(), err, err.Error())
	case errors.Is(err, tracker.ErrClosed):
		return apperrors.WrapServiceUnavailable(r.Context(), err, "rate limit tracker is shutting down")
	default:
		return apperrors.WrapInternal(r.Context(), err, "rate limit tracker failed")
	}
}
