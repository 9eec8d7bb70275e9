// Package config provides centralized configuration for the decider
// sidecar and library defaults. Environment variables are loaded with
// envconfig under the DECIDER prefix and validated with
// go-playground/validator.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// EnvironmentProduction is the production environment identifier.
const EnvironmentProduction = "production"

// Config holds the complete daemon configuration.
type Config struct {
	App           AppConfig           `envconfig:"APP"`
	Engine        EngineConfig        `envconfig:"ENGINE"`
	Watcher       WatcherConfig       `envconfig:"WATCHER"`
	DataPlane     DataPlaneConfig     `envconfig:"DATA"`
	Admin         AdminConfig         `envconfig:"ADMIN"`
	Observability ObservabilityConfig `envconfig:"OBS"`
}

// AppConfig contains core application settings.
type AppConfig struct {
	Name            string        `envconfig:"NAME" default:"deciderd"`
	Version         string        `envconfig:"VERSION" default:"dev"`
	Environment     string        `envconfig:"ENV" default:"development" validate:"oneof=development staging production"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// EngineConfig points the sidecar at its upstream decision engine.
type EngineConfig struct {
	// UpstreamAddr is the host:port of the central decider service the
	// sidecar fronts.
	UpstreamAddr string        `envconfig:"UPSTREAM_ADDR" validate:"required,hostname_port"`
	CallTimeout  time.Duration `envconfig:"CALL_TIMEOUT" default:"500ms"`
}

// WatcherConfig tunes the config snapshot watcher for embedders that run
// one in-process.
type WatcherConfig struct {
	// Path is the node-local config blob written by the fetcher daemon.
	// Empty when the blob is distributed through Redis instead.
	Path             string        `envconfig:"PATH"`
	Interval         time.Duration `envconfig:"INTERVAL" default:"10s"`
	FirstLoadTimeout time.Duration `envconfig:"FIRST_LOAD_TIMEOUT" default:"0"`

	// RedisAddr/RedisKey select the Redis-distributed blob source.
	RedisAddr string `envconfig:"REDIS_ADDR"`
	RedisKey  string `envconfig:"REDIS_KEY" default:"decider:config"`
}

// DataPlaneConfig configures the gRPC data plane server.
type DataPlaneConfig struct {
	Port          string        `envconfig:"PORT" default:"9090"`
	CacheCapacity int           `envconfig:"CACHE_CAPACITY" default:"10000" validate:"gt=0"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"30s"`
}

// AdminConfig configures the read-only REST inspection API.
type AdminConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// ObservabilityConfig configures the admin server (probes + metrics).
type ObservabilityConfig struct {
	Port          string `envconfig:"PORT" default:"9091"`
	LivenessPath  string `envconfig:"LIVENESS_PATH" default:"/health/live"`
	ReadinessPath string `envconfig:"READINESS_PATH" default:"/health/ready"`
	MetricsPath   string `envconfig:"METRICS_PATH" default:"/metrics"`
}

// Load reads configuration from environment variables with the DECIDER
// prefix and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process("DECIDER", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if err := validatePort(c.DataPlane.Port, "data plane"); err != nil {
		return err
	}
	if err := validatePort(c.Admin.Port, "admin"); err != nil {
		return err
	}
	if err := validatePort(c.Observability.Port, "observability"); err != nil {
		return err
	}

	if err := c.Watcher.Validate(); err != nil {
		return err
	}

	return nil
}

// Validate enforces that at most one blob source is selected.
func (w *WatcherConfig) Validate() error {
	if w.Path != "" && w.RedisAddr != "" {
		return fmt.Errorf("watcher: path and redis_addr are mutually exclusive")
	}
	if w.Interval < time.Second {
		return fmt.Errorf("watcher: interval must be at least 1s, got %s", w.Interval)
	}
	return nil
}

// LogConfig logs the effective configuration (no sensitive data).
func (c *Config) LogConfig(log *slog.Logger) {
	log.Info("configuration loaded",
		slog.String("app_name", c.App.Name),
		slog.String("version", c.App.Version),
		slog.String("environment", c.App.Environment),
		slog.String("log_level", c.App.LogLevel),
		slog.String("log_format", c.App.LogFormat),
		slog.String("engine_upstream", c.Engine.UpstreamAddr),
		slog.String("data_port", c.DataPlane.Port),
		slog.String("admin_port", c.Admin.Port),
		slog.String("obs_port", c.Observability.Port),
		slog.Bool("watcher_file", c.Watcher.Path != ""),
		slog.Bool("watcher_redis", c.Watcher.RedisAddr != ""),
	)
}

// validatePort checks that port is a number in 1-65535.
func validatePort(port, context string) error {
	if port == "" {
		return fmt.Errorf("%s port cannot be empty", context)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("%s port must be a number: %w", context, err)
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("%s port must be between 1 and 65535, got %d", context, portNum)
	}
	return nil
}
