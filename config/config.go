// Package config provides configuration loading and management for the
// agent bus.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/agentbus/model"
)

// Config represents the complete agent bus configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	NATS     NATSConfig     `yaml:"nats"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Backend  BackendConfig  `yaml:"backend"`
	Dialogue DialogueConfig `yaml:"dialogue"`
	Matching MatchingConfig `yaml:"matching"`
	Topics   TopicsConfig   `yaml:"topics"`

	// ModelRegistry configures capability-to-model resolution. Nil keeps
	// the registry defaults.
	ModelRegistry *model.RegistryConfig `yaml:"model_registry,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	// Port is the listen port for the /api surface.
	Port int `yaml:"port"`
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	// URL is the NATS server URL.
	URL string `yaml:"url"`
}

// RedisConfig configures the cache used for dialogue and status state.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string `yaml:"addr"`
	// Password is read from REDIS_PASSWORD when empty.
	Password string `yaml:"password,omitempty"`
	// DB selects the Redis logical database.
	DB int `yaml:"db"`
	// TTL is the lifespan applied to every cache write.
	TTL time.Duration `yaml:"ttl"`
}

// PostgresConfig configures the durable row store.
type PostgresConfig struct {
	// DSN is the connection string. Read from POSTGRES_DSN when empty.
	DSN string `yaml:"dsn,omitempty"`
	// MaxOpenConns bounds the connection pool.
	MaxOpenConns int `yaml:"max_open_conns"`
	// MaxIdleConns bounds idle pooled connections.
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// BackendConfig configures the task registration backend. When URL is
// empty the mock-success path is used and registration returns a
// synthetic task ID.
type BackendConfig struct {
	URL string `yaml:"url,omitempty"`
	// APIKey is read from BACKEND_API_KEY when empty.
	APIKey string `yaml:"api_key,omitempty"`
	// Timeout bounds each backend call.
	Timeout time.Duration `yaml:"timeout"`
}

// DialogueConfig configures the clarification dialogue engine.
type DialogueConfig struct {
	// MaxTurns is the user-turn bound before a dialogue fails.
	MaxTurns int `yaml:"max_turns"`
	// PromptDir is an optional directory of prompt template overrides.
	PromptDir string `yaml:"prompt_dir,omitempty"`
}

// MatchingConfig configures the matching pipeline.
type MatchingConfig struct {
	// DisableProcessorFiltering makes discovery return the first page of
	// active processors, capped, instead of tag/semantic filtering.
	DisableProcessorFiltering bool `yaml:"disable_processor_filtering"`
	// DisableMultiStepWorkflow skips workflow plan synthesis.
	DisableMultiStepWorkflow bool `yaml:"disable_multi_step_workflow"`
	// HealthCheckTimeout bounds each candidate probe.
	HealthCheckTimeout time.Duration `yaml:"health_check_timeout"`
	// MaxCandidates is the size of the returned ranked list.
	MaxCandidates int `yaml:"max_candidates"`
}

// TopicsConfig names the queue subjects.
type TopicsConfig struct {
	// TaskEvents carries TaskPendingMatch lifecycle events.
	TaskEvents string `yaml:"task_events"`
	// Messages carries broker messages for delivery.
	Messages string `yaml:"messages"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Log:  LogConfig{Level: "info"},
		HTTP: HTTPConfig{Port: 8080},
		NATS: NATSConfig{URL: "nats://localhost:4222"},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  24 * time.Hour,
		},
		Postgres: PostgresConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Backend: BackendConfig{
			Timeout: 30 * time.Second,
		},
		Dialogue: DialogueConfig{
			MaxTurns: 10,
		},
		Matching: MatchingConfig{
			HealthCheckTimeout: 5 * time.Second,
			MaxCandidates:      5,
		},
		Topics: TopicsConfig{
			TaskEvents: "agentbus.task.pending_match",
			Messages:   "agentbus.broker.message",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be in (0,65535]")
	}
	if c.Redis.TTL <= 0 {
		return fmt.Errorf("redis.ttl must be positive")
	}
	if c.Dialogue.MaxTurns <= 0 {
		return fmt.Errorf("dialogue.max_turns must be positive")
	}
	if c.Matching.HealthCheckTimeout <= 0 {
		return fmt.Errorf("matching.health_check_timeout must be positive")
	}
	if c.Matching.MaxCandidates <= 0 {
		return fmt.Errorf("matching.max_candidates must be positive")
	}
	if c.Topics.TaskEvents == "" || c.Topics.Messages == "" {
		return fmt.Errorf("topics.task_events and topics.messages are required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, layered over the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.HTTP.Port != 0 {
		c.HTTP.Port = other.HTTP.Port
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.Redis.Addr != "" {
		c.Redis.Addr = other.Redis.Addr
	}
	if other.Redis.Password != "" {
		c.Redis.Password = other.Redis.Password
	}
	if other.Redis.DB != 0 {
		c.Redis.DB = other.Redis.DB
	}
	if other.Redis.TTL != 0 {
		c.Redis.TTL = other.Redis.TTL
	}
	if other.Postgres.DSN != "" {
		c.Postgres.DSN = other.Postgres.DSN
	}
	if other.Postgres.MaxOpenConns != 0 {
		c.Postgres.MaxOpenConns = other.Postgres.MaxOpenConns
	}
	if other.Postgres.MaxIdleConns != 0 {
		c.Postgres.MaxIdleConns = other.Postgres.MaxIdleConns
	}
	if other.Backend.URL != "" {
		c.Backend.URL = other.Backend.URL
	}
	if other.Backend.APIKey != "" {
		c.Backend.APIKey = other.Backend.APIKey
	}
	if other.Backend.Timeout != 0 {
		c.Backend.Timeout = other.Backend.Timeout
	}
	if other.Dialogue.MaxTurns != 0 {
		c.Dialogue.MaxTurns = other.Dialogue.MaxTurns
	}
	if other.Dialogue.PromptDir != "" {
		c.Dialogue.PromptDir = other.Dialogue.PromptDir
	}
	if other.Matching.DisableProcessorFiltering {
		c.Matching.DisableProcessorFiltering = true
	}
	if other.Matching.DisableMultiStepWorkflow {
		c.Matching.DisableMultiStepWorkflow = true
	}
	if other.Matching.HealthCheckTimeout != 0 {
		c.Matching.HealthCheckTimeout = other.Matching.HealthCheckTimeout
	}
	if other.Matching.MaxCandidates != 0 {
		c.Matching.MaxCandidates = other.Matching.MaxCandidates
	}
	if other.Topics.TaskEvents != "" {
		c.Topics.TaskEvents = other.Topics.TaskEvents
	}
	if other.Topics.Messages != "" {
		c.Topics.Messages = other.Topics.Messages
	}
	if other.ModelRegistry != nil {
		c.ModelRegistry = other.ModelRegistry
	}
}
