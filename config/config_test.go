package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, 10, cfg.Dialogue.MaxTurns)
	assert.Equal(t, 5*time.Second, cfg.Matching.HealthCheckTimeout)
	assert.Equal(t, 5, cfg.Matching.MaxCandidates)
	assert.Equal(t, "agentbus.task.pending_match", cfg.Topics.TaskEvents)
	assert.Equal(t, "agentbus.broker.message", cfg.Topics.Messages)
	assert.False(t, cfg.Matching.DisableProcessorFiltering)

	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "log.level",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.HTTP.Port = 0 },
			wantErr: "http.port",
		},
		{
			name:    "zero ttl",
			mutate:  func(c *Config) { c.Redis.TTL = 0 },
			wantErr: "redis.ttl",
		},
		{
			name:    "zero max turns",
			mutate:  func(c *Config) { c.Dialogue.MaxTurns = 0 },
			wantErr: "dialogue.max_turns",
		},
		{
			name:    "zero max candidates",
			mutate:  func(c *Config) { c.Matching.MaxCandidates = 0 },
			wantErr: "matching.max_candidates",
		},
		{
			name:    "empty topic",
			mutate:  func(c *Config) { c.Topics.TaskEvents = "" },
			wantErr: "topics",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentbus.yaml")

	content := `
log:
  level: debug
redis:
  addr: cache.internal:6379
  ttl: 1h
matching:
  max_candidates: 3
  disable_multi_step_workflow: true
topics:
  task_events: custom.task.events
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	// Overridden values.
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "cache.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Equal(t, 3, cfg.Matching.MaxCandidates)
	assert.True(t, cfg.Matching.DisableMultiStepWorkflow)
	assert.Equal(t, "custom.task.events", cfg.Topics.TaskEvents)

	// Defaults survive for the rest.
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "agentbus.broker.message", cfg.Topics.Messages)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/agentbus.yaml")
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "agentbus.yaml")

	cfg := DefaultConfig()
	cfg.Log.Level = "warn"
	cfg.Matching.MaxCandidates = 7
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", loaded.Log.Level)
	assert.Equal(t, 7, loaded.Matching.MaxCandidates)
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	overlay := &Config{}
	overlay.Log.Level = "error"
	overlay.Redis.TTL = 30 * time.Minute
	overlay.Matching.DisableProcessorFiltering = true
	overlay.Backend.URL = "https://backend.example.com"

	base.Merge(overlay)

	assert.Equal(t, "error", base.Log.Level)
	assert.Equal(t, 30*time.Minute, base.Redis.TTL)
	assert.True(t, base.Matching.DisableProcessorFiltering)
	assert.Equal(t, "https://backend.example.com", base.Backend.URL)

	// Zero values in the overlay do not clobber.
	assert.Equal(t, "nats://localhost:4222", base.NATS.URL)
	assert.Equal(t, 10, base.Dialogue.MaxTurns)
}

func TestMergeNil(t *testing.T) {
	base := DefaultConfig()
	base.Merge(nil)
	assert.Equal(t, "info", base.Log.Level)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_TTL_SECONDS", "600")
	t.Setenv("HEALTH_CHECK_TIMEOUT_MS", "1500")
	t.Setenv("DEFAULT_MAX_CANDIDATES", "9")
	t.Setenv("DISABLE_PROCESSOR_FILTERING", "true")
	t.Setenv("TASK_EVENT_TOPIC", "env.task.events")
	t.Setenv("BACKEND_API_KEY", "secret-key")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, 1500*time.Millisecond, cfg.Matching.HealthCheckTimeout)
	assert.Equal(t, 9, cfg.Matching.MaxCandidates)
	assert.True(t, cfg.Matching.DisableProcessorFiltering)
	assert.Equal(t, "env.task.events", cfg.Topics.TaskEvents)
	assert.Equal(t, "secret-key", cfg.Backend.APIKey)
}

func TestApplyEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("REDIS_TTL_SECONDS", "not-a-number")
	t.Setenv("HTTP_PORT", "not-a-port")
	t.Setenv("DISABLE_MULTI_STEP_WORKFLOW", "nope")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.False(t, cfg.Matching.DisableMultiStepWorkflow)
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0644))

	t.Setenv("LOG_LEVEL", "error")

	cfg, err := Load(path)
	require.NoError(t, err)
	// Env beats file beats defaults.
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.HTTP.Port)
}
