// Package config provides configuration loading for brdforge.
//
// Values come from an optional YAML file, then BRDFORGE_* environment
// variables, then defaults. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete brdforge configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Model     ModelConfig     `koanf:"model"`
	Classify  ClassifyConfig  `koanf:"classify"`
	Synthesis SynthesisConfig `koanf:"synthesis"`
	Events    EventsConfig    `koanf:"events"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StoreConfig selects and configures the knowledge store.
type StoreConfig struct {
	Driver          string   `koanf:"driver"` // memory | postgres
	DSN             Secret   `koanf:"dsn"`
	MaxOpenConns    int      `koanf:"max_open_conns"`
	MaxIdleConns    int      `koanf:"max_idle_conns"`
	ConnMaxLifetime Duration `koanf:"conn_max_lifetime"`
	MigrateOnStart  bool     `koanf:"migrate_on_start"`
}

// ModelConfig configures the external language model.
type ModelConfig struct {
	Provider  string   `koanf:"provider"` // openai | langchaingo
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	Name      string   `koanf:"name"`
	Timeout   Duration `koanf:"timeout"`
	MaxTokens int      `koanf:"max_tokens"`
	RateLimit float64  `koanf:"rate_limit"` // requests per second
	Burst     int      `koanf:"burst"`
}

// ClassifyConfig tunes the batch classification client.
type ClassifyConfig struct {
	BatchSize        int      `koanf:"batch_size"`
	Concurrency      int      `koanf:"concurrency"`
	GroupPause       Duration `koanf:"group_pause"`
	MaxAttempts      int      `koanf:"max_attempts"`
	BaseBackoff      Duration `koanf:"base_backoff"`
	RateLimitBackoff Duration `koanf:"rate_limit_backoff"`
	RateLimitCap     Duration `koanf:"rate_limit_cap"`
	Jitter           float64  `koanf:"jitter"`
}

// SynthesisConfig tunes the section agents and their worker pool.
type SynthesisConfig struct {
	Workers        int      `koanf:"workers"`
	AssumptionsCap int      `koanf:"assumptions_cap"`
	SummaryCap     int      `koanf:"summary_cap"`
	MaxAttempts    int      `koanf:"max_attempts"`
	BaseBackoff    Duration `koanf:"base_backoff"`
}

// EventsConfig configures the NATS event publisher.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LoggingConfig holds the logging knobs exposed to operators.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled       bool    `koanf:"enabled"`
	Endpoint      string  `koanf:"endpoint"`
	Protocol      string  `koanf:"protocol"`
	Insecure      bool    `koanf:"insecure"`
	TLSSkipVerify bool    `koanf:"tls_skip_verify"`
	ServiceName   string  `koanf:"service_name"`
	SampleRate    float64 `koanf:"sample_rate"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Store.MaxOpenConns == 0 {
		cfg.Store.MaxOpenConns = 10
	}
	if cfg.Store.MaxIdleConns == 0 {
		cfg.Store.MaxIdleConns = 5
	}
	if cfg.Store.ConnMaxLifetime == 0 {
		cfg.Store.ConnMaxLifetime = Duration(15 * time.Minute)
	}

	if cfg.Model.Provider == "" {
		cfg.Model.Provider = "openai"
	}
	if cfg.Model.BaseURL == "" {
		cfg.Model.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = "meta-llama/llama-4-maverick-17b-128e-instruct"
	}
	if cfg.Model.Timeout == 0 {
		cfg.Model.Timeout = Duration(60 * time.Second)
	}
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = 2048
	}
	if cfg.Model.RateLimit == 0 {
		cfg.Model.RateLimit = 0.5
	}
	if cfg.Model.Burst == 0 {
		cfg.Model.Burst = 2
	}

	if cfg.Classify.BatchSize == 0 {
		cfg.Classify.BatchSize = 10
	}
	if cfg.Classify.Concurrency == 0 {
		cfg.Classify.Concurrency = 2
	}
	if cfg.Classify.GroupPause == 0 {
		cfg.Classify.GroupPause = Duration(time.Second)
	}
	if cfg.Classify.MaxAttempts == 0 {
		cfg.Classify.MaxAttempts = 3
	}
	if cfg.Classify.BaseBackoff == 0 {
		cfg.Classify.BaseBackoff = Duration(time.Second)
	}
	if cfg.Classify.RateLimitBackoff == 0 {
		cfg.Classify.RateLimitBackoff = Duration(2 * time.Second)
	}
	if cfg.Classify.RateLimitCap == 0 {
		cfg.Classify.RateLimitCap = Duration(60 * time.Second)
	}

	if cfg.Synthesis.Workers == 0 {
		cfg.Synthesis.Workers = 4
	}
	if cfg.Synthesis.AssumptionsCap == 0 {
		cfg.Synthesis.AssumptionsCap = 40
	}
	if cfg.Synthesis.SummaryCap == 0 {
		cfg.Synthesis.SummaryCap = 3000
	}
	if cfg.Synthesis.MaxAttempts == 0 {
		cfg.Synthesis.MaxAttempts = 2
	}
	if cfg.Synthesis.BaseBackoff == 0 {
		cfg.Synthesis.BaseBackoff = Duration(time.Second)
	}

	if cfg.Events.URL == "" {
		cfg.Events.URL = "nats://localhost:4222"
	}
	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "brdforge"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "brdforge"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if !c.Store.DSN.IsSet() {
			return errors.New("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q (want memory or postgres)", c.Store.Driver)
	}

	switch c.Model.Provider {
	case "openai", "langchaingo":
	default:
		return fmt.Errorf("unknown model provider %q (want openai or langchaingo)", c.Model.Provider)
	}
	if c.Model.RateLimit < 0 {
		return fmt.Errorf("model.rate_limit must be >= 0, got %f", c.Model.RateLimit)
	}

	if c.Classify.BatchSize < 1 {
		return fmt.Errorf("classify.batch_size must be >= 1, got %d", c.Classify.BatchSize)
	}
	if c.Classify.Concurrency < 1 {
		return fmt.Errorf("classify.concurrency must be >= 1, got %d", c.Classify.Concurrency)
	}
	if c.Classify.MaxAttempts < 1 {
		return fmt.Errorf("classify.max_attempts must be >= 1, got %d", c.Classify.MaxAttempts)
	}
	if c.Classify.Jitter < 0 || c.Classify.Jitter > 1 {
		return fmt.Errorf("classify.jitter must be between 0 and 1, got %f", c.Classify.Jitter)
	}

	if c.Synthesis.Workers < 1 {
		return fmt.Errorf("synthesis.workers must be >= 1, got %d", c.Synthesis.Workers)
	}

	if c.Events.Enabled && c.Events.URL == "" {
		return errors.New("events.url is required when events are enabled")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	return nil
}
