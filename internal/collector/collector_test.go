package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/core"
)

func fixedClock() time.Time {
	return time.UnixMilli(1_700_000_000_123)
}

func testClient(delay time.Duration) *Client {
	return New(
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3, Delay: delay}),
		WithClock(fixedClock),
	)
}

func TestSendSuccess(t *testing.T) {
	var (
		mu       sync.Mutex
		received Payload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := testClient(time.Millisecond)
	sub, err := c.Send(context.Background(),
		core.CollectorConfig{EndpointURL: srv.URL, Enabled: true},
		Request{OrganizationID: "org_42", ResetAt: 1_700_003_600, Domain: "claude.ai"})
	require.NoError(t, err)

	assert.Equal(t, core.SubmissionSuccess, sub.State)
	assert.Equal(t, 1, sub.Attempts)
	assert.Equal(t, http.StatusAccepted, sub.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, Payload{
		OrgID:     "org_42",
		ResetAt:   1_700_003_600,
		Timestamp: 1_700_000_000_123,
		Source:    DefaultSource,
		Domain:    "claude.ai",
	}, received)
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	delay := 20 * time.Millisecond
	c := testClient(delay)

	start := time.Now()
	sub, err := c.Send(context.Background(),
		core.CollectorConfig{EndpointURL: srv.URL, Enabled: true},
		Request{OrganizationID: "org_42", ResetAt: 1_700_003_600})
	elapsed := time.Since(start)

	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)

	assert.Equal(t, int32(3), calls.Load(), "exactly three attempts")
	assert.Equal(t, 3, sub.Attempts)
	assert.Equal(t, core.SubmissionFailure, sub.State)
	assert.Equal(t, http.StatusServiceUnavailable, sub.StatusCode)
	assert.NotEmpty(t, sub.Error)
	assert.GreaterOrEqual(t, elapsed, 2*delay, "attempts are spaced by the configured delay")
}

func TestSendRecoversAfterServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub, err := testClient(time.Millisecond).Send(context.Background(),
		core.CollectorConfig{EndpointURL: srv.URL, Enabled: true},
		Request{OrganizationID: "org_42", ResetAt: 1})
	require.NoError(t, err)
	assert.Equal(t, core.SubmissionSuccess, sub.State)
	assert.Equal(t, 2, sub.Attempts)
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sub, err := testClient(time.Millisecond).Send(context.Background(),
		core.CollectorConfig{EndpointURL: srv.URL, Enabled: true},
		Request{OrganizationID: "org_42", ResetAt: 1})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, sub.Attempts)
	assert.Equal(t, core.SubmissionFailure, sub.State)
	assert.Equal(t, http.StatusBadRequest, sub.StatusCode)
}

func TestSendRetriesTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	sub, err := testClient(time.Millisecond).Send(context.Background(),
		core.CollectorConfig{EndpointURL: endpoint, Enabled: true},
		Request{OrganizationID: "org_42", ResetAt: 1})
	require.Error(t, err)
	assert.Equal(t, 3, sub.Attempts)
	assert.Equal(t, 0, sub.StatusCode)
}

func TestSendDisabled(t *testing.T) {
	c := testClient(time.Millisecond)

	for _, target := range []core.CollectorConfig{
		{EndpointURL: "https://collector.test", Enabled: false},
		{EndpointURL: "  ", Enabled: true},
	} {
		sub, err := c.Send(context.Background(), target, Request{OrganizationID: "org_42", ResetAt: 1})
		require.ErrorIs(t, err, ErrDisabled)
		assert.Equal(t, 0, sub.Attempts)
		assert.Equal(t, core.SubmissionFailure, sub.State)
	}
}

func TestSendCancelledDuringRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	sub, err := testClient(time.Hour).Send(ctx,
		core.CollectorConfig{EndpointURL: srv.URL, Enabled: true},
		Request{OrganizationID: "org_42", ResetAt: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, core.SubmissionFailure, sub.State)
}

func TestNewFromConfig(t *testing.T) {
	c := NewFromConfig(config.CollectorConfig{
		Source:        "edge-1",
		Timeout:       2 * time.Second,
		RetryAttempts: 5,
		RetryDelay:    250 * time.Millisecond,
	})

	assert.Equal(t, "edge-1", c.source)
	assert.Equal(t, 2*time.Second, c.http.Timeout)
	assert.Equal(t, RetryPolicy{MaxAttempts: 5, Delay: 250 * time.Millisecond}, c.policy)

	defaults := NewFromConfig(config.CollectorConfig{})
	assert.Equal(t, DefaultSource, defaults.source)
}

func TestRetryPolicyNormalized(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 0, Delay: -time.Second}.normalized()
	assert.Equal(t, 1, p.MaxAttempts)
	assert.Equal(t, time.Duration(0), p.Delay)
}

func TestDefaultRetryPolicyCountsFirstCall(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)

	b := p.backOff(context.Background())
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, backoff.Stop, b.NextBackOff(), "two retries after the first call")
}
