package core

import (
	"strings"
	"time"
)

// APIFamily identifies the shape of a completion endpoint.
type APIFamily string

const (
	FamilyVendorChat        APIFamily = "vendor-chat"
	FamilyVendorCompletion  APIFamily = "vendor-completion"
	FamilyGenericChat       APIFamily = "generic-chat"
	FamilyGenericCompletion APIFamily = "generic-completion"
	FamilyUnknown           APIFamily = "unknown"
)

// DefaultDomain is used when a detection carries no usable host.
const DefaultDomain = "default"

// APIInfo is the classification of a request URL.
type APIInfo struct {
	IsCompletionEndpoint bool      `json:"isCompletionEndpoint"`
	OrganizationID       string    `json:"organizationId,omitempty"`
	ConversationID       string    `json:"conversationId,omitempty"`
	APIFamily            APIFamily `json:"apiFamily"`
}

// DetectionEvent is emitted for every observed 429 response.
type DetectionEvent struct {
	ID             string    `json:"id,omitempty"`
	URL            string    `json:"url"`
	Domain         string    `json:"domain"`
	ResetAt        *int64    `json:"resetAt"`
	OrganizationID string    `json:"organizationId,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	APIFamily      APIFamily `json:"apiFamily"`
	Timestamp      int64     `json:"timestamp"`
	Source         string    `json:"source,omitempty"`
}

// RateLimitRecord is the authoritative per-domain rate limit state.
type RateLimitRecord struct {
	Domain         string `json:"-"`
	ResetAt        *int64 `json:"resetAt"`
	DetectedAt     int64  `json:"detectedAt"`
	URL            string `json:"url"`
	OrganizationID string `json:"organizationId,omitempty"`
}

// Live reports whether the record is still in effect at now.
// Records without a reset time never expire on their own.
func (r RateLimitRecord) Live(now time.Time) bool {
	if r.ResetAt == nil {
		return true
	}
	return *r.ResetAt*1000 > now.UnixMilli()
}

// Status is the query view of a live record.
type Status struct {
	Domain      string `json:"domain"`
	ResetAt     *int64 `json:"resetAt"`
	ResetTime   *int64 `json:"resetTime"`
	RemainingMs *int64 `json:"remainingMs"`
	DetectedAt  int64  `json:"detectedAt"`
	URL         string `json:"url"`
}

// StatusOf derives the query view of a record at now.
func StatusOf(r RateLimitRecord, now time.Time) Status {
	status := Status{
		Domain:     r.Domain,
		DetectedAt: r.DetectedAt,
		URL:        r.URL,
	}
	if r.ResetAt != nil {
		resetAt := *r.ResetAt
		resetTime := resetAt * 1000
		remaining := resetTime - now.UnixMilli()
		if remaining < 0 {
			remaining = 0
		}
		status.ResetAt = &resetAt
		status.ResetTime = &resetTime
		status.RemainingMs = &remaining
	}
	return status
}

// CollectorConfig holds the remote collector settings.
type CollectorConfig struct {
	EndpointURL string `json:"endpointUrl"`
	Enabled     bool   `json:"enabled"`
}

// Active reports whether submissions should be attempted.
func (c CollectorConfig) Active() bool {
	return c.Enabled && strings.TrimSpace(c.EndpointURL) != ""
}

// CollectorConfigUpdate carries a partial collector configuration change.
type CollectorConfigUpdate struct {
	EndpointURL *string `json:"endpointUrl,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// Apply merges the update over current.
func (u CollectorConfigUpdate) Apply(current CollectorConfig) CollectorConfig {
	next := current
	if u.EndpointURL != nil {
		next.EndpointURL = strings.TrimSpace(*u.EndpointURL)
	}
	if u.Enabled != nil {
		next.Enabled = *u.Enabled
	}
	return next
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// SubmissionState is the presentation-facing state of a collector submission.
type SubmissionState string

const (
	SubmissionPending SubmissionState = "pending"
	SubmissionSuccess SubmissionState = "success"
	SubmissionFailure SubmissionState = "failure"
)

// Submission reports a collector submission and its outcome.
type Submission struct {
	State          SubmissionState `json:"state"`
	OrganizationID string          `json:"orgId"`
	ResetAt        int64           `json:"resetAt"`
	Domain         string          `json:"domain,omitempty"`
	Attempts       int             `json:"attempts"`
	StatusCode     int             `json:"statusCode,omitempty"`
	Error          string          `json:"error,omitempty"`
}
