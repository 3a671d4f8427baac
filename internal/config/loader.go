// Package config provides centralized configuration management for ratewatch.
// Configuration is layered with viper:
// Layer 1: code defaults (setDefaults)
// Layer 2: user config file (--config or the XDG config path)
// Layer 3: RATEWATCH_* environment variables and runtime overrides
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName is used for XDG paths and the binary name.
	AppName = "ratewatch"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "RATEWATCH_"
)

var (
	appConfig *Config
	configMu  sync.RWMutex

	configFile   string
	configFileMu sync.RWMutex
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetConfigFile pins an explicit config file, bypassing XDG discovery.
func SetConfigFile(path string) {
	configFileMu.Lock()
	defer configFileMu.Unlock()
	configFile = strings.TrimSpace(path)
}

// Load builds the effective configuration. Later runtime overrides win.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	path, err := resolveConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if len(envOverrides) > 0 {
		if err := v.MergeConfigMap(envOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
		}
	}

	for _, overrides := range runtimeOverrides {
		if len(overrides) == 0 {
			continue
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to apply runtime overrides: %w", err)
		}
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	setConfig(cfg)

	return cfg, nil
}

// Validate rejects configurations that cannot start.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	switch cfg.Store.Driver {
	case "libsql":
		if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
			return errors.New("store.path or store.url is required for the libsql driver")
		}
	case "redis":
		if strings.TrimSpace(cfg.Store.Redis.URL) == "" {
			return errors.New("store.redis.url is required for the redis driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	if cfg.Collector.RetryAttempts < 1 {
		return fmt.Errorf("collector.retry_attempts must be at least 1, got %d", cfg.Collector.RetryAttempts)
	}
	if cfg.Collector.RetryDelay < 0 {
		return errors.New("collector.retry_delay must not be negative")
	}
	if cfg.Intercept.QueueSize < 1 {
		return fmt.Errorf("intercept.queue_size must be at least 1, got %d", cfg.Intercept.QueueSize)
	}

	for name, upstream := range cfg.Proxy.Upstreams {
		if strings.TrimSpace(upstream) == "" {
			return fmt.Errorf("proxy upstream %q has no url", name)
		}
	}

	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

func normalize(cfg *Config) {
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "libsql"
	}
	if cfg.Store.Driver == "libsql" && strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	hosts := make([]string, 0, len(cfg.Surfaces.AllowedHosts))
	for _, host := range cfg.Surfaces.AllowedHosts {
		if trimmed := strings.TrimSpace(host); trimmed != "" {
			hosts = append(hosts, trimmed)
		}
	}
	cfg.Surfaces.AllowedHosts = hosts
}

// resolveConfigFile returns the explicit config file, or the first existing
// XDG candidate, or "" when none exists.
func resolveConfigFile() (string, error) {
	configFileMu.RLock()
	explicit := configFile
	configFileMu.RUnlock()

	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	for _, candidate := range gfconfig.GetAppConfigPaths(AppName) {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.redis.url", "")
	v.SetDefault("store.redis.namespace", AppName)
	v.SetDefault("store.redis.pool_size", 10)
	v.SetDefault("store.redis.min_idle_conns", 0)
	v.SetDefault("store.redis.dial_timeout", "5s")
	v.SetDefault("store.redis.read_timeout", "3s")
	v.SetDefault("store.redis.write_timeout", "3s")

	// Tracker defaults
	v.SetDefault("tracker.sweep_schedule", "@every 60s")

	// Collector defaults
	v.SetDefault("collector.endpoint_url", "")
	v.SetDefault("collector.enabled", false)
	v.SetDefault("collector.source", AppName)
	v.SetDefault("collector.timeout", "10s")
	v.SetDefault("collector.retry_attempts", 3)
	v.SetDefault("collector.retry_delay", "1s")

	// Interception defaults
	v.SetDefault("intercept.queue_size", 256)
	v.SetDefault("intercept.max_body_bytes", 1<<20)

	// Surface defaults
	v.SetDefault("surfaces.allowed_hosts", []string{"claude.ai", "chatgpt.com", "api.", "demo.fuclaude.com"})
	v.SetDefault("surfaces.buffer_size", 32)

	// Proxy defaults
	v.SetDefault("proxy.upstreams", map[string]string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps RATEWATCH_{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	prefix := EnvPrefix

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},
		{Name: prefix + "REDIS_URL", Path: []string{"store", "redis", "url"}, Type: EnvString},
		{Name: prefix + "REDIS_NAMESPACE", Path: []string{"store", "redis", "namespace"}, Type: EnvString},

		// Tracker config
		{Name: prefix + "SWEEP_SCHEDULE", Path: []string{"tracker", "sweep_schedule"}, Type: EnvString},

		// Collector config
		{Name: prefix + "COLLECTOR_ENDPOINT_URL", Path: []string{"collector", "endpoint_url"}, Type: EnvString},
		{Name: prefix + "COLLECTOR_ENABLED", Path: []string{"collector", "enabled"}, Type: EnvBool},
		{Name: prefix + "COLLECTOR_SOURCE", Path: []string{"collector", "source"}, Type: EnvString},
		{Name: prefix + "COLLECTOR_TIMEOUT", Path: []string{"collector", "timeout"}, Type: EnvString},
		{Name: prefix + "COLLECTOR_RETRY_ATTEMPTS", Path: []string{"collector", "retry_attempts"}, Type: EnvInt},
		{Name: prefix + "COLLECTOR_RETRY_DELAY", Path: []string{"collector", "retry_delay"}, Type: EnvString},

		// Interception and surfaces
		{Name: prefix + "INTERCEPT_QUEUE_SIZE", Path: []string{"intercept", "queue_size"}, Type: EnvInt},
		{Name: prefix + "SURFACES_ALLOWED_HOSTS", Path: []string{"surfaces", "allowed_hosts"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},

		// Debug config
		{Name: prefix + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},
		{Name: prefix + "DEBUG_PPROF_ENABLED", Path: []string{"debug", "pprof_enabled"}, Type: EnvBool},
	}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
