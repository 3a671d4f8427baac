package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points XDG lookups at temp dirs so a developer's own config never leaks in.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	SetConfigFile("")
	t.Cleanup(func() { SetConfigFile("") })
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolate(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("ratewatch"), "ratewatch.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)
		assert.Equal(t, "", cfg.Store.URL)
		assert.Equal(t, "ratewatch", cfg.Store.Redis.Namespace)

		// Verify pipeline defaults
		assert.Equal(t, "@every 60s", cfg.Tracker.SweepSchedule)
		assert.False(t, cfg.Collector.Enabled)
		assert.Equal(t, 3, cfg.Collector.RetryAttempts)
		assert.Equal(t, time.Second, cfg.Collector.RetryDelay)
		assert.Equal(t, 10*time.Second, cfg.Collector.Timeout)
		assert.Equal(t, 256, cfg.Intercept.QueueSize)
		assert.Equal(t, int64(1<<20), cfg.Intercept.MaxBodyBytes)
		assert.Equal(t, []string{"claude.ai", "chatgpt.com", "api.", "demo.fuclaude.com"}, cfg.Surfaces.AllowedHosts)

		// Verify logging defaults
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)

		// Verify metrics defaults
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)

		assert.True(t, cfg.Health.Enabled)
		assert.False(t, cfg.Debug.Enabled)
		assert.False(t, cfg.Debug.PprofEnabled)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)

		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)

		// Verify non-overridden values remain default
		assert.Equal(t, "structured", cfg.Logging.Profile)
		assert.Equal(t, 9090, cfg.Metrics.Port)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("RATEWATCH_PORT", "3000")
		t.Setenv("RATEWATCH_LOG_LEVEL", "warn")
		t.Setenv("RATEWATCH_METRICS_ENABLED", "false")
		t.Setenv("RATEWATCH_COLLECTOR_ENDPOINT_URL", "https://collector.test/ingest")
		t.Setenv("RATEWATCH_COLLECTOR_ENABLED", "true")
		t.Setenv("RATEWATCH_SURFACES_ALLOWED_HOSTS", "claude.ai,example.test")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, "https://collector.test/ingest", cfg.Collector.EndpointURL)
		assert.True(t, cfg.Collector.Enabled)
		assert.Equal(t, []string{"claude.ai", "example.test"}, cfg.Surfaces.AllowedHosts)
	})

	// runtime > env > file > defaults
	t.Run("ConfigPrecedence", func(t *testing.T) {
		isolate(t)
		t.Setenv("RATEWATCH_PORT", "4000")

		overrides := map[string]any{
			"server": map[string]any{
				"port": 5000,
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		isolate(t)

		path := filepath.Join(t.TempDir(), "config.yaml")
		content := []byte(`server:
  port: 7070
store:
  driver: memory
collector:
  endpoint_url: https://collector.test/ingest
  retry_delay: 250ms
proxy:
  upstreams:
    anthropic: https://api.anthropic.com
`)
		require.NoError(t, os.WriteFile(path, content, 0o600))
		SetConfigFile(path)

		t.Setenv("RATEWATCH_PORT", "7171")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 7171, cfg.Server.Port, "env overrides file")
		assert.Equal(t, "memory", cfg.Store.Driver)
		assert.Equal(t, "https://collector.test/ingest", cfg.Collector.EndpointURL)
		assert.Equal(t, 250*time.Millisecond, cfg.Collector.RetryDelay)
		assert.Equal(t, "https://api.anthropic.com", cfg.Proxy.Upstreams["anthropic"])
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		isolate(t)
		SetConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))

		_, err := Load(ctx)
		require.Error(t, err)
	})

	t.Run("InvalidDriver", func(t *testing.T) {
		isolate(t)

		_, err := Load(ctx, map[string]any{"store": map[string]any{"driver": "postgres"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported store driver")
	})

	t.Run("RedisDriverRequiresURL", func(t *testing.T) {
		isolate(t)

		_, err := Load(ctx, map[string]any{"store": map[string]any{"driver": "redis"}})
		require.Error(t, err)
	})
}

func TestGetConfig(t *testing.T) {
	isolate(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, cfg.Logging.Level, retrieved.Logging.Level)
}

func TestEnvSpecs(t *testing.T) {
	specs := getEnvSpecs()
	assert.NotEmpty(t, specs)

	envVarNames := make(map[string]bool)
	for _, spec := range specs {
		envVarNames[spec.Name] = true
	}

	assert.True(t, envVarNames["RATEWATCH_LOG_LEVEL"], "LOG_LEVEL env var must be mapped")
	assert.True(t, envVarNames["RATEWATCH_PORT"], "PORT env var must be mapped")
	assert.True(t, envVarNames["RATEWATCH_HOST"], "HOST env var must be mapped")
	assert.True(t, envVarNames["RATEWATCH_METRICS_PORT"], "METRICS_PORT env var must be mapped")
	assert.True(t, envVarNames["RATEWATCH_DB_PATH"], "DB_PATH env var must be mapped")
	assert.True(t, envVarNames["RATEWATCH_COLLECTOR_ENDPOINT_URL"])
}

func TestDurationParsing(t *testing.T) {
	isolate(t)
	t.Setenv("RATEWATCH_READ_TIMEOUT", "45s")
	t.Setenv("RATEWATCH_SHUTDOWN_TIMEOUT", "5m")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
}

func TestConfigReload(t *testing.T) {
	isolate(t)
	ctx := context.Background()

	cfg1, err := Load(ctx)
	require.NoError(t, err)
	initialPort := cfg1.Server.Port

	cfg2, err := Load(ctx, map[string]any{
		"server": map[string]any{
			"port": initialPort + 1000,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, initialPort+1000, cfg2.Server.Port)
	assert.Equal(t, cfg2.Server.Port, GetConfig().Server.Port)
}
