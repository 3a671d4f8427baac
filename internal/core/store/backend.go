package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ratewatch/ratewatch/internal/config"
)

const (
	DriverLibsql = "libsql"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Persisted key layout.
const (
	RateLimitPrefix    = "rateLimit_"
	CollectorConfigKey = "collectorConfig"
)

// ErrNotInitialized is returned by methods called on a nil or closed backend.
var ErrNotInitialized = errors.New("store is not initialized")

// Entry is a raw key/value pair held by a backend.
type Entry struct {
	Key   string
	Value []byte
}

// Backend is the durable key/value storage behind the tracker.
// Implementations are safe for concurrent use; writes are last-writer-wins.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// List returns entries whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Entry, error)
	// DeletePrefix removes every key starting with prefix in one operation
	// and returns the removed keys.
	DeletePrefix(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Driver() string
	Close() error
}

// Open initializes the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverLibsql
	}

	switch driver {
	case DriverLibsql:
		s, err := OpenSQL(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case DriverRedis:
		s, err := OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}

// RateLimitKey returns the persisted key for a domain.
func RateLimitKey(domain string) string {
	return RateLimitPrefix + domain
}

// DomainFromKey reverses RateLimitKey.
func DomainFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, RateLimitPrefix) {
		return "", false
	}
	domain := strings.TrimPrefix(key, RateLimitPrefix)
	return domain, domain != ""
}
