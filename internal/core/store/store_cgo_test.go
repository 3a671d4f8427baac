//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/stretchr/testify/require"
)

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Close())
}

func TestSQLBackend(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: DriverLibsql,
		Path:   filepath.Join(t.TempDir(), "ratewatch.db"),
	}

	b, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	exerciseBackend(t, b)
}

func TestSQLBackendPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: DriverLibsql,
		Path:   filepath.Join(t.TempDir(), "ratewatch.db"),
	}

	first, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, RateLimitKey("claude.ai"), []byte(`{"resetAt":1}`)))
	require.NoError(t, first.Close())

	second, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	value, found, err := second.Get(ctx, RateLimitKey("claude.ai"))
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `{"resetAt":1}`, string(value))
}

func TestMigrateRecordsSchemaVersion(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQL(ctx, config.StoreConfig{Path: filepath.Join(t.TempDir(), "ratewatch.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	version, err := s.schemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, SchemaVersion, version)

	// a second run is a no-op
	require.NoError(t, s.Migrate(ctx))
}
