package store

import (
	"context"
	"errors"
	"strings"

	"github.com/ratewatch/ratewatch/internal/core"
)

// RecordQuery selects persisted rate limit records for admin commands.
type RecordQuery struct {
	All    bool
	Domain string
	Prefix string
}

func (q RecordQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Domain) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --domain, or --prefix")
}

// keyPrefix maps the query onto a backend key prefix. exact is set when
// only a single key may match.
func (q RecordQuery) keyPrefix() (prefix string, exact bool, err error) {
	if err := q.Validate(); err != nil {
		return "", false, err
	}
	if q.All {
		return RateLimitPrefix, false, nil
	}
	if domain := strings.ToLower(strings.TrimSpace(q.Domain)); domain != "" {
		return RateLimitKey(domain), true, nil
	}
	return RateLimitKey(strings.ToLower(strings.TrimSpace(q.Prefix))), false, nil
}

// ListRecords returns persisted records matching q, ordered by domain.
// Undecodable entries are skipped.
func ListRecords(ctx context.Context, b Backend, q RecordQuery) ([]core.RateLimitRecord, error) {
	if b == nil {
		return nil, ErrNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	prefix, exact, err := q.keyPrefix()
	if err != nil {
		return nil, err
	}

	entries, err := b.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	records := []core.RateLimitRecord{}
	for _, e := range entries {
		if exact && e.Key != prefix {
			continue
		}
		r, err := DecodeRecord(e)
		if err != nil {
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// CountRecords returns how many persisted records match q.
func CountRecords(ctx context.Context, b Backend, q RecordQuery) (int, error) {
	records, err := ListRecords(ctx, b, q)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// ResetRecords deletes persisted records matching q and returns the
// affected domains.
func ResetRecords(ctx context.Context, b Backend, q RecordQuery) ([]string, error) {
	if b == nil {
		return nil, ErrNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	prefix, exact, err := q.keyPrefix()
	if err != nil {
		return nil, err
	}

	if exact {
		_, found, err := b.Get(ctx, prefix)
		if err != nil {
			return nil, err
		}
		if !found {
			return []string{}, nil
		}
		if err := b.Delete(ctx, prefix); err != nil {
			return nil, err
		}
		domain, _ := DomainFromKey(prefix)
		return []string{domain}, nil
	}

	keys, err := b.DeletePrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	domains := make([]string, 0, len(keys))
	for _, k := range keys {
		if domain, ok := DomainFromKey(k); ok {
			domains = append(domains, domain)
		}
	}
	return domains, nil
}
