package store

import (
	"context"
	"testing"

	"github.com/ratewatch/ratewatch/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseBackend runs the shared behavioural checks every Backend must pass.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, found, err := b.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("PutGetOverwrite", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "k1", []byte(`{"a":1}`)))
		require.NoError(t, b.Put(ctx, "k1", []byte(`{"a":2}`)))

		value, found, err := b.Get(ctx, "k1")
		require.NoError(t, err)
		require.True(t, found)
		assert.JSONEq(t, `{"a":2}`, string(value))

		require.NoError(t, b.Delete(ctx, "k1"))
		_, found, err = b.Get(ctx, "k1")
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, b.Delete(ctx, "k1"), "deleting a missing key is not an error")
	})

	t.Run("PrefixIsLiteral", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, RateLimitKey("b.example"), []byte(`{}`)))
		require.NoError(t, b.Put(ctx, RateLimitKey("a.example"), []byte(`{}`)))
		// '_' must not act as a wildcard
		require.NoError(t, b.Put(ctx, "rateLimitX", []byte(`{}`)))
		require.NoError(t, b.Put(ctx, CollectorConfigKey, []byte(`{}`)))

		entries, err := b.List(ctx, RateLimitPrefix)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, RateLimitKey("a.example"), entries[0].Key)
		assert.Equal(t, RateLimitKey("b.example"), entries[1].Key)

		keys, err := b.DeletePrefix(ctx, RateLimitPrefix)
		require.NoError(t, err)
		assert.Equal(t, []string{RateLimitKey("a.example"), RateLimitKey("b.example")}, keys)

		entries, err = b.List(ctx, RateLimitPrefix)
		require.NoError(t, err)
		assert.Empty(t, entries)

		_, found, err := b.Get(ctx, "rateLimitX")
		require.NoError(t, err)
		assert.True(t, found)
		_, found, err = b.Get(ctx, CollectorConfigKey)
		require.NoError(t, err)
		assert.True(t, found)

		require.NoError(t, b.Delete(ctx, "rateLimitX"))
		require.NoError(t, b.Delete(ctx, CollectorConfigKey))
	})

	t.Run("DeletePrefixEmpty", func(t *testing.T) {
		keys, err := b.DeletePrefix(ctx, RateLimitPrefix)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("Records", func(t *testing.T) {
		record := core.RateLimitRecord{
			Domain:         "claude.ai",
			ResetAt:        core.Int64(1_700_003_600),
			DetectedAt:     1_700_000_000_000,
			URL:            "https://claude.ai/api/organizations/org_42/chat_conversations/c1/completion",
			OrganizationID: "org_42",
		}
		require.NoError(t, PutRecord(ctx, b, record))
		require.NoError(t, b.Put(ctx, RateLimitKey("broken.example"), []byte("not json")))

		records, errs, err := LoadRecords(ctx, b)
		require.NoError(t, err)
		require.Len(t, errs, 1)
		require.Len(t, records, 1)
		assert.Equal(t, record, records[0])

		_, err = ResetRecords(ctx, b, RecordQuery{All: true})
		require.NoError(t, err)
	})

	t.Run("CollectorConfig", func(t *testing.T) {
		_, found, err := LoadCollectorConfig(ctx, b)
		require.NoError(t, err)
		assert.False(t, found)

		want := core.CollectorConfig{EndpointURL: "https://collector.test/ingest", Enabled: true}
		require.NoError(t, SaveCollectorConfig(ctx, b, want))

		got, found, err := LoadCollectorConfig(ctx, b)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, want, got)

		require.NoError(t, b.Delete(ctx, CollectorConfigKey))
	})

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, b.Ping(ctx))
	})
}

func TestMemoryBackend(t *testing.T) {
	b := NewMemory()
	exerciseBackend(t, b)
	require.Equal(t, DriverMemory, b.Driver())

	require.NoError(t, b.Close())
	_, _, err := b.Get(context.Background(), "k")
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestMemoryBackendCopiesValues(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	value := []byte("abc")
	require.NoError(t, b.Put(ctx, "k", value))
	value[0] = 'x'

	got, _, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
}
