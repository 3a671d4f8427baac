package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ratewatch/ratewatch/internal/core"
)

// EncodeRecord serializes a record for persistence. The domain lives in the key.
func EncodeRecord(r core.RateLimitRecord) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode rate limit record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a persisted entry back into a record.
func DecodeRecord(e Entry) (core.RateLimitRecord, error) {
	domain, ok := DomainFromKey(e.Key)
	if !ok {
		return core.RateLimitRecord{}, fmt.Errorf("not a rate limit key: %q", e.Key)
	}

	var r core.RateLimitRecord
	if err := json.Unmarshal(e.Value, &r); err != nil {
		return core.RateLimitRecord{}, fmt.Errorf("decode rate limit record %q: %w", e.Key, err)
	}
	r.Domain = domain
	return r, nil
}

// PutRecord persists a record under its domain key.
func PutRecord(ctx context.Context, b Backend, r core.RateLimitRecord) error {
	data, err := EncodeRecord(r)
	if err != nil {
		return err
	}
	return b.Put(ctx, RateLimitKey(r.Domain), data)
}

// LoadRecords returns every decodable persisted record. Entries that fail to
// decode are returned as errs so callers can log and skip them.
func LoadRecords(ctx context.Context, b Backend) ([]core.RateLimitRecord, []error, error) {
	entries, err := b.List(ctx, RateLimitPrefix)
	if err != nil {
		return nil, nil, err
	}

	records := make([]core.RateLimitRecord, 0, len(entries))
	var errs []error
	for _, e := range entries {
		r, err := DecodeRecord(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, r)
	}
	return records, errs, nil
}

// LoadCollectorConfig returns the persisted collector configuration.
func LoadCollectorConfig(ctx context.Context, b Backend) (core.CollectorConfig, bool, error) {
	data, ok, err := b.Get(ctx, CollectorConfigKey)
	if err != nil || !ok {
		return core.CollectorConfig{}, false, err
	}

	var cfg core.CollectorConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return core.CollectorConfig{}, false, fmt.Errorf("decode collector config: %w", err)
	}
	return cfg, true, nil
}

// SaveCollectorConfig persists the collector configuration.
func SaveCollectorConfig(ctx context.Context, b Backend, cfg core.CollectorConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode collector config: %w", err)
	}
	return b.Put(ctx, CollectorConfigKey, data)
}
