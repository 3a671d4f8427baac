package config

import (
	"time"
)

// Config represents the complete application configuration.
// Values are layered: code defaults, then the YAML config file
// (~/.config/ratewatch/config.yaml), then RATEWATCH_* environment
// variables, then runtime overrides.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Tracker   TrackerConfig   `mapstructure:"tracker" yaml:"tracker"`
	Collector CollectorConfig `mapstructure:"collector" yaml:"collector"`
	Intercept InterceptConfig `mapstructure:"intercept" yaml:"intercept"`
	Surfaces  SurfacesConfig  `mapstructure:"surfaces" yaml:"surfaces"`
	Proxy     ProxyConfig     `mapstructure:"proxy" yaml:"proxy"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health"`
	Debug     DebugConfig     `mapstructure:"debug" yaml:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StoreConfig selects the durable backend for rate limit state.
// Driver is one of libsql, redis or memory.
type StoreConfig struct {
	Driver    string      `mapstructure:"driver" yaml:"driver"`
	Path      string      `mapstructure:"path" yaml:"path"`
	URL       string      `mapstructure:"url" yaml:"url"`
	AuthToken string      `mapstructure:"auth_token" yaml:"auth_token"`
	Redis     RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig configures the shared Redis backend.
type RedisConfig struct {
	URL          string        `mapstructure:"url" yaml:"url"`
	Namespace    string        `mapstructure:"namespace" yaml:"namespace"`
	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// TrackerConfig controls the state store lifecycle.
type TrackerConfig struct {
	// SweepSchedule is a cron spec; "@every 60s" by default. Empty disables the sweep.
	SweepSchedule string `mapstructure:"sweep_schedule" yaml:"sweep_schedule"`
}

// CollectorConfig holds collector transport settings. The endpoint and
// enabled flag seed the persisted collector configuration on first start.
type CollectorConfig struct {
	EndpointURL   string        `mapstructure:"endpoint_url" yaml:"endpoint_url"`
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	Source        string        `mapstructure:"source" yaml:"source"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// InterceptConfig tunes the interception layer.
type InterceptConfig struct {
	QueueSize    int   `mapstructure:"queue_size" yaml:"queue_size"`
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// SurfacesConfig scopes UI push delivery.
type SurfacesConfig struct {
	AllowedHosts []string `mapstructure:"allowed_hosts" yaml:"allowed_hosts"`
	BufferSize   int      `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// ProxyConfig maps upstream names to base URLs served under /proxy/{name}.
type ProxyConfig struct {
	Upstreams map[string]string `mapstructure:"upstreams" yaml:"upstreams"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile" yaml:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port" yaml:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled" yaml:"pprof_enabled"`
}
