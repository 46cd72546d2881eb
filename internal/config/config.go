// Package config provides configuration loading for ledgerd.
//
// Configuration is read from an optional YAML file and overridden by
// LEDGERD_-prefixed environment variables. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete ledgerd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Redis         RedisConfig         `koanf:"redis"`
	Postgres      PostgresConfig      `koanf:"postgres"`
	Supabase      SupabaseConfig      `koanf:"supabase"`
	NATS          NATSConfig          `koanf:"nats"`
	Temporal      TemporalConfig      `koanf:"temporal"`
	Worker        WorkerConfig        `koanf:"worker"`
	LLM           LLMConfig           `koanf:"llm"`
	Observability ObservabilityConfig `koanf:"observability"`
	Permissions   PermissionsConfig   `koanf:"permissions"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"http_host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// PipelineConfig tunes the orchestration pipeline.
type PipelineConfig struct {
	// MaxRecentMessages bounds the per-conversation message window.
	MaxRecentMessages int `koanf:"max_recent_messages"`
	// ContextStore selects the context backend: "memory" or "redis".
	ContextStore string `koanf:"context_store"`
	// DecisionStore selects the decision backend: "memory" or "postgres".
	DecisionStore string `koanf:"decision_store"`
}

// RedisConfig holds Redis connection settings for the context store.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password Secret        `koanf:"password"`
	DB       int           `koanf:"db"`
	TTL      time.Duration `koanf:"ttl"`
}

// PostgresConfig holds the decision store database settings.
type PostgresConfig struct {
	DSN          Secret `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
}

// SupabaseConfig holds tenant data access settings.
type SupabaseConfig struct {
	URL    string `koanf:"url"`
	APIKey Secret `koanf:"api_key"`
}

// NATSConfig holds inbound/outbound channel bus settings.
type NATSConfig struct {
	URL            string `koanf:"url"`
	InboundSubject string `koanf:"inbound_subject"`
	OutboundPrefix string `koanf:"outbound_prefix"`
	QueueGroup     string `koanf:"queue_group"`
}

// TemporalConfig enables durable job execution for inbound channel messages.
type TemporalConfig struct {
	Enabled     bool   `koanf:"enabled"`
	HostPort    string `koanf:"host_port"`
	Namespace   string `koanf:"namespace"`
	TaskQueue   string `koanf:"task_queue"`
	MaxAttempts int    `koanf:"max_attempts"`
}

// WorkerConfig bounds direct (non-Temporal) inbound job processing.
type WorkerConfig struct {
	Concurrency int           `koanf:"concurrency"`
	JobTimeout  time.Duration `koanf:"job_timeout"`
}

// LLMConfig configures the language model collaborators.
type LLMConfig struct {
	BaseURL   string  `koanf:"base_url"`
	Model     string  `koanf:"model"`
	APIKey    Secret  `koanf:"api_key"`
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`
}

// ObservabilityConfig holds logging, tracing and metrics settings.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	OTLPEndpoint    string  `koanf:"otlp_endpoint"`
	OTLPInsecure    bool    `koanf:"otlp_insecure"`
	OTLPProtocol    string  `koanf:"otlp_protocol"`
	SamplingRate    float64 `koanf:"sampling_rate"`
	LogLevel        string  `koanf:"log_level"`
	LogFormat       string  `koanf:"log_format"`
}

// PermissionsConfig overrides the CEL rule evaluated for each permission.
type PermissionsConfig struct {
	Rules map[string]string `koanf:"rules"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Pipeline.MaxRecentMessages < 1 {
		return fmt.Errorf("pipeline max_recent_messages must be >= 1, got %d", c.Pipeline.MaxRecentMessages)
	}

	switch c.Pipeline.ContextStore {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("redis addr required when context_store is redis")
		}
	default:
		return fmt.Errorf("unknown context store %q (want memory or redis)", c.Pipeline.ContextStore)
	}

	switch c.Pipeline.DecisionStore {
	case "memory":
	case "postgres":
		if !c.Postgres.DSN.IsSet() {
			return errors.New("postgres dsn required when decision_store is postgres")
		}
	default:
		return fmt.Errorf("unknown decision store %q (want memory or postgres)", c.Pipeline.DecisionStore)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be >= 1, got %d", c.Worker.Concurrency)
	}
	if c.Temporal.Enabled && c.Temporal.TaskQueue == "" {
		return errors.New("temporal task_queue required when temporal is enabled")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.LLM.RateLimit < 0 {
		return fmt.Errorf("llm rate_limit cannot be negative, got %v", c.LLM.RateLimit)
	}
	return nil
}
