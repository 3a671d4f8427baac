package handlers

import (
	"context"
	"time"

	apperrors "github.com/ratewatch/ratewatch/internal/errors"
)

const defaultCheckTimeout = 2 * time.Second

// Pinger is satisfied by the storage backends.
type Pinger interface {
	Ping(ctx context.Context) error
	Driver() string
}

// StoreChecker reports whether the storage backend answers.
type StoreChecker struct {
	Store   Pinger
	Timeout time.Duration
}

func (s StoreChecker) CheckHealth(ctx context.Context) error {
	if s.Store == nil {
		return apperrors.NewServiceUnavailableError("store not configured")
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		return apperrors.WrapServiceUnavailable(ctx, err, s.Store.Driver()+" store unreachable")
	}
	return nil
}

// CheckerFunc adapts a function to HealthChecker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}
