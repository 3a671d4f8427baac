package collector

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds collector submissions: at most MaxAttempts calls in
// total, Delay apart. MaxAttempts counts the first call, so 3 means one
// call plus two retries, not one call plus three retries.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy is three calls in total, one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// backOff is cancelled with ctx so pending retries stop at teardown.
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	p = p.normalized()
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(p.MaxAttempts-1))
	return backoff.WithContext(b, ctx)
}
