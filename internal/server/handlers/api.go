package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ratewatch/ratewatch/internal/collector"
	"github.com/ratewatch/ratewatch/internal/core"
	"github.com/ratewatch/ratewatch/internal/core/classify"
	apperrors "github.com/ratewatch/ratewatch/internal/errors"
	"github.com/ratewatch/ratewatch/internal/notify"
	"github.com/ratewatch/ratewatch/internal/server/middleware"
	"github.com/ratewatch/ratewatch/internal/tracker"
)

const maxRequestBody = 1 << 20

// API serves the rate limit state over HTTP.
type API struct {
	Tracker    *tracker.Tracker
	Broker     *notify.Broker
	BufferSize int

	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (a *API) now() time.Time {
	if a.Clock != nil {
		return a.Clock()
	}
	return time.Now()
}

// DetectionAccepted acknowledges an ingested detection.
type DetectionAccepted struct {
	ID      string `json:"id"`
	Domain  string `json:"domain"`
	Tracked bool   `json:"tracked"`
}

// RateLimitResponse is the status of a single domain; Status is null when
// the domain is not rate limited.
type RateLimitResponse struct {
	Domain string       `json:"domain"`
	Status *core.Status `json:"status"`
}

// ClearResponse acknowledges a clear.
type ClearResponse struct {
	Cleared []string `json:"cleared"`
	Existed *bool    `json:"existed,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return errors.New("request body is empty")
	}
	return json.Unmarshal(data, v)
}

// IngestDetection accepts a detection event reported by an external
// observer, such as an injected page script.
func (a *API) IngestDetection(w http.ResponseWriter, r *http.Request) {
	var ev core.DetectionEvent
	if err := decodeBody(r, &ev); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid detection event"))
		return
	}
	if strings.TrimSpace(ev.URL) == "" && strings.TrimSpace(ev.Domain) == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("detection event needs a url or a domain"))
		return
	}

	if ev.Domain == "" {
		ev.Domain = classify.Domain(ev.URL)
	}
	if ev.APIFamily == "" {
		info := classify.Classify(ev.URL)
		ev.APIFamily = info.APIFamily
		if ev.OrganizationID == "" {
			ev.OrganizationID = info.OrganizationID
		}
		if ev.ConversationID == "" {
			ev.ConversationID = info.ConversationID
		}
	}
	if ev.ID == "" {
		ev.ID = middleware.GetRequestID(r.Context())
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp <= 0 {
		ev.Timestamp = a.now().UnixMilli()
	}
	if ev.Source == "" {
		ev.Source = "api"
	}

	if err := a.Tracker.Ingest(r.Context(), ev); err != nil {
		respondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, DetectionAccepted{
		ID:      ev.ID,
		Domain:  tracker.NormalizeDomain(ev.Domain),
		Tracked: ev.ResetAt != nil,
	})
}

// ListRateLimits returns every live rate limit.
func (a *API) ListRateLimits(w http.ResponseWriter, r *http.Request) {
	statuses, err := a.Tracker.List(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// GetRateLimit returns one domain's status.
func (a *API) GetRateLimit(w http.ResponseWriter, r *http.Request) {
	domain := tracker.NormalizeDomain(chi.URLParam(r, "domain"))
	status, err := a.Tracker.Query(r.Context(), domain)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RateLimitResponse{Domain: domain, Status: status})
}

// ClearRateLimit removes one domain's record.
func (a *API) ClearRateLimit(w http.ResponseWriter, r *http.Request) {
	domain := tracker.NormalizeDomain(chi.URLParam(r, "domain"))
	existed, err := a.Tracker.Clear(r.Context(), domain)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ClearResponse{Cleared: []string{domain}, Existed: &existed})
}

// ClearAllRateLimits removes every record.
func (a *API) ClearAllRateLimits(w http.ResponseWriter, r *http.Request) {
	domains, err := a.Tracker.ClearAll(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if domains == nil {
		domains = []string{}
	}
	writeJSON(w, http.StatusOK, ClearResponse{Cleared: domains})
}

// GetCollectorConfig returns the collector configuration.
func (a *API) GetCollectorConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Tracker.CollectorConfig())
}

// UpdateCollectorConfig merges a partial configuration.
func (a *API) UpdateCollectorConfig(w http.ResponseWriter, r *http.Request) {
	var update core.CollectorConfigUpdate
	if err := decodeBody(r, &update); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid collector config"))
		return
	}

	cfg, err := a.Tracker.SetCollectorConfig(r.Context(), update)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// TestCollector sends a synthetic submission and reports the outcome.
func (a *API) TestCollector(w http.ResponseWriter, r *http.Request) {
	sub, err := a.Tracker.TestCollector(r.Context())
	switch {
	case errors.Is(err, collector.ErrDisabled), err != nil && sub.Attempts == 0:
		respondWithError(w, r, err)
	default:
		// delivery failures are reported in the submission itself
		writeJSON(w, http.StatusOK, sub)
	}
}
