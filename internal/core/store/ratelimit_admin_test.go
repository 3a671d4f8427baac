package store

import (
	"context"
	"testing"

	"github.com/ratewatch/ratewatch/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRecords(t *testing.T, b Backend, domains ...string) {
	t.Helper()
	for i, domain := range domains {
		require.NoError(t, PutRecord(context.Background(), b, core.RateLimitRecord{
			Domain:     domain,
			ResetAt:    core.Int64(int64(1_700_000_000 + i)),
			DetectedAt: 1_700_000_000_000,
			URL:        "https://" + domain + "/v1/chat/completions",
		}))
	}
}

func TestRecordQueryValidate(t *testing.T) {
	require.Error(t, RecordQuery{}.Validate())
	require.Error(t, RecordQuery{Domain: "   "}.Validate())
	require.NoError(t, RecordQuery{All: true}.Validate())
	require.NoError(t, RecordQuery{Domain: "claude.ai"}.Validate())
	require.NoError(t, RecordQuery{Prefix: "api."}.Validate())
}

func TestListRecords(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	seedRecords(t, b, "api.openai.com", "api.anthropic.com", "claude.ai", "claude.ai.example")

	all, err := ListRecords(ctx, b, RecordQuery{All: true})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "api.anthropic.com", all[0].Domain)

	byPrefix, err := ListRecords(ctx, b, RecordQuery{Prefix: "API."})
	require.NoError(t, err)
	require.Len(t, byPrefix, 2)

	exact, err := ListRecords(ctx, b, RecordQuery{Domain: "claude.ai"})
	require.NoError(t, err)
	require.Len(t, exact, 1)
	assert.Equal(t, "claude.ai", exact[0].Domain)

	count, err := CountRecords(ctx, b, RecordQuery{Prefix: "claude"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = ListRecords(ctx, b, RecordQuery{})
	require.Error(t, err)
}

func TestResetRecords(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	seedRecords(t, b, "api.openai.com", "api.anthropic.com", "claude.ai", "claude.ai.example")
	require.NoError(t, SaveCollectorConfig(ctx, b, core.CollectorConfig{Enabled: true}))

	domains, err := ResetRecords(ctx, b, RecordQuery{Domain: "claude.ai"})
	require.NoError(t, err)
	assert.Equal(t, []string{"claude.ai"}, domains)

	domains, err = ResetRecords(ctx, b, RecordQuery{Domain: "missing.example"})
	require.NoError(t, err)
	assert.Empty(t, domains)

	domains, err = ResetRecords(ctx, b, RecordQuery{Prefix: "api."})
	require.NoError(t, err)
	assert.Equal(t, []string{"api.anthropic.com", "api.openai.com"}, domains)

	domains, err = ResetRecords(ctx, b, RecordQuery{All: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"claude.ai.example"}, domains)

	_, found, err := LoadCollectorConfig(ctx, b)
	require.NoError(t, err)
	assert.True(t, found, "collector config survives a reset of all records")
}
