package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Load loads configuration in layers: defaults, then an optional YAML
// file, then environment overrides. Path may be empty.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		config.Merge(fileConfig)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// ApplyEnv overlays recognised environment variables onto the config.
// Secrets (REDIS_PASSWORD, BACKEND_API_KEY, provider keys) are only
// ever read from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = port
		}
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
	if v := os.Getenv("REDIS_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Redis.TTL = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("BACKEND_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("MAX_CLARIFICATION_TURNS"); v != "" {
		if turns, err := strconv.Atoi(v); err == nil && turns > 0 {
			c.Dialogue.MaxTurns = turns
		}
	}
	if isTruthy(os.Getenv("DISABLE_PROCESSOR_FILTERING")) {
		c.Matching.DisableProcessorFiltering = true
	}
	if isTruthy(os.Getenv("DISABLE_MULTI_STEP_WORKFLOW")) {
		c.Matching.DisableMultiStepWorkflow = true
	}
	if v := os.Getenv("HEALTH_CHECK_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Matching.HealthCheckTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("DEFAULT_MAX_CANDIDATES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Matching.MaxCandidates = n
		}
	}
	if v := os.Getenv("TASK_EVENT_TOPIC"); v != "" {
		c.Topics.TaskEvents = v
	}
	if v := os.Getenv("MESSAGE_QUEUE_TOPIC"); v != "" {
		c.Topics.Messages = v
	}
}

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	}
	return false
}
