// Package extract derives a canonical reset instant from 429 responses.
//
// Signals are tried in a fixed order and the first one that parses wins:
// a top-level resetsAt body field, the rate limit reset headers, Retry-After,
// and finally a JSON document embedded in error.message. Parse failures are
// treated as "no signal" and never surface as errors.
package extract

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// AbsoluteThreshold separates absolute Unix-second reset values from
// relative second counts. A relative value just under the threshold is
// misread as absolute; that edge is accepted.
const AbsoluteThreshold = 1_000_000_000

// Source names the signal a reset time was taken from.
type Source string

const (
	SourceNone         Source = ""
	SourceBody         Source = "body"
	SourceResetHeader  Source = "reset-header"
	SourceRetryAfter   Source = "retry-after"
	SourceErrorMessage Source = "error-message"
)

// HeaderLookup is satisfied by http.Header.
type HeaderLookup interface {
	Get(key string) string
}

var resetHeaders = []string{"x-ratelimit-reset", "x-rate-limit-reset", "ratelimit-reset"}

// Result is the outcome of an extraction.
type Result struct {
	ResetAt int64  `json:"resetAt"`
	Source  Source `json:"source"`
}

// Found reports whether any signal matched.
func (r Result) Found() bool {
	return r.Source != SourceNone
}

// Pointer returns the reset time or nil when unknown.
func (r Result) Pointer() *int64 {
	if !r.Found() {
		return nil
	}
	v := r.ResetAt
	return &v
}

// ResetAt returns the reset instant in Unix seconds, or nil when no signal
// matched.
func ResetAt(headers HeaderLookup, body any, now time.Time) *int64 {
	return Extract(headers, body, now).Pointer()
}

// Extract runs the fallback chain. body is a decoded JSON value or nil.
func Extract(headers HeaderLookup, body any, now time.Time) Result {
	nowSeconds := now.UnixMilli() / 1000

	if v, ok := numericField(body, "resetsAt"); ok {
		return Result{ResetAt: v, Source: SourceBody}
	}

	if raw := firstHeader(headers, resetHeaders...); raw != "" {
		if v, ok := parseInteger(raw); ok {
			if v > AbsoluteThreshold {
				return Result{ResetAt: v, Source: SourceResetHeader}
			}
			return Result{ResetAt: nowSeconds + v, Source: SourceResetHeader}
		}
	}

	if raw := firstHeader(headers, "retry-after"); raw != "" {
		if v, ok := parseInteger(raw); ok {
			return Result{ResetAt: nowSeconds + v, Source: SourceRetryAfter}
		}
	}

	if v, ok := embeddedResetsAt(body); ok {
		return Result{ResetAt: v, Source: SourceErrorMessage}
	}

	return Result{}
}

// ParseBody decodes a response body as JSON. Non-JSON payloads are kept as
// {"text": raw}; an empty body yields nil.
func ParseBody(raw []byte) any {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return decoded
	}
	return map[string]any{"text": string(raw)}
}

func firstHeader(headers HeaderLookup, names ...string) string {
	if headers == nil {
		return ""
	}
	for _, name := range names {
		if value := strings.TrimSpace(headers.Get(name)); value != "" {
			return value
		}
	}
	return ""
}

func numericField(body any, field string) (int64, bool) {
	obj, ok := body.(map[string]any)
	if !ok {
		return 0, false
	}
	return toInt64(obj[field])
}

func embeddedResetsAt(body any) (int64, bool) {
	obj, ok := body.(map[string]any)
	if !ok {
		return 0, false
	}
	errObj, ok := obj["error"].(map[string]any)
	if !ok {
		return 0, false
	}
	message, ok := errObj["message"].(string)
	if !ok || strings.TrimSpace(message) == "" {
		return 0, false
	}

	var inner any
	if err := json.Unmarshal([]byte(message), &inner); err != nil {
		return 0, false
	}
	return numericField(inner, "resetsAt")
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return toInt64(f)
		}
		return 0, false
	case int:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

// parseInteger reads a leading optionally signed run of digits, so "120",
// "1.5" and "30s" parse while HTTP dates and empty strings do not.
func parseInteger(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	negative := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		negative = s[0] == '-'
		s = s[1:]
	}

	var (
		value  int64
		digits int
	)
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		if value > (math.MaxInt64-9)/10 {
			return 0, false
		}
		value = value*10 + int64(s[digits]-'0')
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	if negative {
		value = -value
	}
	return value, true
}
