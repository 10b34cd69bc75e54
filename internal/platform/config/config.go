// Package config loads and validates service configuration with koanf.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	DefaultServerPort     = 8080
	DefaultMaxRequestSize = 1 << 20

	// DefaultRequestTimeout bounds every /api/v1 request.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxRoutines caps the routines accepted by one routines request.
	DefaultMaxRoutines = 16

	// DefaultRootRoutine names the context used outside any transaction.
	DefaultRootRoutine = "root"

	DefaultDownstreamRetryMaxAttempts     = 3
	DefaultDownstreamCircuitMaxFailures   = 5
	DefaultDownstreamCircuitHalfOpenLimit = 1

	DefaultLogFileMaxSizeMB  = 100
	DefaultLogFileMaxBackups = 3
	DefaultLogFileMaxAgeDays = 28
)

// Config is everything the service reads at startup.
type Config struct {
	App        AppConfig        `koanf:"app"        validate:"required"`
	Server     ServerConfig     `koanf:"server"     validate:"required"`
	Log        LogConfig        `koanf:"log"        validate:"required"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Reqctx     ReqctxConfig     `koanf:"reqctx"     validate:"required"`
	API        APIConfig        `koanf:"api"        validate:"required"`
	Downstream DownstreamConfig `koanf:"downstream"`
}

// AppConfig identifies the running service.
type AppConfig struct {
	Name        string `koanf:"name"        validate:"required"`
	Version     string `koanf:"version"     validate:"required"`
	Environment string `koanf:"environment" validate:"required,oneof=local dev qa prod test"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port            int           `koanf:"port"             validate:"required,min=1,max=65535"`
	Host            string        `koanf:"host"             validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"required,min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"required,min=1s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"required,min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,min=1s"`
	MaxRequestSize  int64         `koanf:"max_request_size" validate:"required,min=1"`
}

// LogConfig selects level and format. File adds a rolling JSON log.
type LogConfig struct {
	Level  string        `koanf:"level"  validate:"required,oneof=trace debug info warn error"`
	Format string        `koanf:"format" validate:"required,oneof=json text pretty"`
	File   LogFileConfig `koanf:"file"`
}

type LogFileConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"       validate:"required_if=Enabled true"`
	MaxSizeMB  int    `koanf:"max_size"   validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `koanf:"max_backups" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `koanf:"max_age"    validate:"omitempty,min=0,max=365"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig enables OTLP export. Without it spans stay in process.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"      validate:"required_if=Enabled true,omitempty,hostname_port"`
	ServiceName  string  `koanf:"service_name"  validate:"required_if=Enabled true"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"min=0,max=1"`
}

// ReqctxConfig contains request context settings.
type ReqctxConfig struct {
	// StrictLifecycle rejects hook registration and flushes on contexts that
	// are not bound to a transaction.
	StrictLifecycle bool `koanf:"strict_lifecycle"`

	// RootRoutine is the correlation ID and routine of the root context.
	RootRoutine string `koanf:"root_routine" validate:"required"`

	// LogHookStack includes the goroutine stack when a hook panics.
	LogHookStack bool `koanf:"log_hook_stack"`
}

// APIConfig contains settings for the /api/v1 routes.
type APIConfig struct {
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"required,min=1ms"`
	MaxRoutines    int           `koanf:"max_routines"    validate:"required,min=1,max=256"`
}

// DownstreamConfig describes an optional downstream service. Outbound calls
// carry the request context's correlation ID and the W3C trace context.
// The client is only built when BaseURL is set.
type DownstreamConfig struct {
	BaseURL        string               `koanf:"base_url"        validate:"omitempty,url"`
	Name           string               `koanf:"name"            validate:"required_with=BaseURL"`
	Timeout        time.Duration        `koanf:"timeout"         validate:"omitempty,min=100ms"`
	Retry          RetryConfig          `koanf:"retry"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
}

// Enabled reports whether a downstream service is configured.
func (d *DownstreamConfig) Enabled() bool {
	return d.BaseURL != ""
}

type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"     validate:"omitempty,min=1,max=10"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"omitempty,min=10ms"`
	MaxInterval     time.Duration `koanf:"max_interval"     validate:"omitempty,min=100ms"`
}

// CircuitBreakerConfig trips after MaxFailures consecutive failures and
// probes again after Timeout.
type CircuitBreakerConfig struct {
	MaxFailures   int           `koanf:"max_failures"    validate:"omitempty,min=1"`
	Timeout       time.Duration `koanf:"timeout"         validate:"omitempty,min=1s"`
	HalfOpenLimit int           `koanf:"half_open_limit" validate:"omitempty,min=1"`
}

func defaults() map[string]any {
	return map[string]any{
		"app.name":        "reqctx-service",
		"app.version":     "dev",
		"app.environment": "local",

		"server.port":             DefaultServerPort,
		"server.host":             "0.0.0.0",
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "10s",
		"server.max_request_size": DefaultMaxRequestSize,

		"log.level":            "info",
		"log.format":           "json",
		"log.file.enabled":     false,
		"log.file.path":        "./logs/app.log",
		"log.file.max_size":    DefaultLogFileMaxSizeMB,
		"log.file.max_backups": DefaultLogFileMaxBackups,
		"log.file.max_age":     DefaultLogFileMaxAgeDays,
		"log.file.compress":    true,

		"telemetry.enabled":       false,
		"telemetry.endpoint":      "",
		"telemetry.service_name":  "reqctx-service",
		"telemetry.sampling_rate": 1.0,

		"reqctx.strict_lifecycle": false,
		"reqctx.root_routine":     DefaultRootRoutine,
		"reqctx.log_hook_stack":   true,

		"api.request_timeout": "30s",
		"api.max_routines":    DefaultMaxRoutines,

		"downstream.base_url":                        "",
		"downstream.name":                            "downstream",
		"downstream.timeout":                         "5s",
		"downstream.retry.max_attempts":              DefaultDownstreamRetryMaxAttempts,
		"downstream.retry.initial_interval":          "100ms",
		"downstream.retry.max_interval":              "2s",
		"downstream.circuit_breaker.max_failures":    DefaultDownstreamCircuitMaxFailures,
		"downstream.circuit_breaker.timeout":         "30s",
		"downstream.circuit_breaker.half_open_limit": DefaultDownstreamCircuitHalfOpenLimit,
	}
}

// Load layers configuration, later layers overriding earlier ones: defaults,
// configs/base.yaml, configs/<profile>.yaml, then APP_ environment variables.
// Missing files are skipped. The result is not validated.
func Load(profile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	files := []string{"configs/base.yaml"}
	if profile != "" {
		files = append(files, "configs/"+profile+".yaml")
	}

	for _, path := range files {
		if err := loadFileIfExists(k, path); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("APP_", ".", envKeyMapper(defaults())), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// envKeyMapper maps APP_SECTION_KEY variables onto config keys. Underscores
// are ambiguous (section separator or part of a key), so a variable matching a
// known key such as APP_REQCTX_STRICT_LIFECYCLE resolves to that key
// (reqctx.strict_lifecycle); anything else falls back to dots.
func envKeyMapper(known map[string]any) func(string) string {
	lookup := make(map[string]string, len(known))
	for key := range known {
		lookup[strings.ReplaceAll(key, "_", ".")] = key
	}

	return func(s string) string {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "APP_")), "_", ".")
		if canonical, ok := lookup[key]; ok {
			return canonical
		}

		return key
	}
}

func loadFileIfExists(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return k.Load(file.Provider(path), yaml.Parser())
}
