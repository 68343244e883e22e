// Package config provides configuration constants for e2e tests.
package config

import "time"

// Default connection URLs.
const (
	DefaultBaseURL    = "http://localhost:8080"
	DefaultMockLLMURL = "http://localhost:11434"
)

// Default timeouts.
const (
	DefaultCommandTimeout = 30 * time.Second
	DefaultSetupTimeout   = 60 * time.Second
	DefaultStageTimeout   = 30 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultWaitTimeout    = 20 * time.Second
)

// E2E test identifiers.
const (
	E2ERequesterID = "e2e-requester"
)

// Config holds the e2e test configuration.
type Config struct {
	BaseURL        string        `json:"base_url"`
	MockLLMURL     string        `json:"mock_llm_url"`
	CommandTimeout time.Duration `json:"command_timeout"`
	SetupTimeout   time.Duration `json:"setup_timeout"`
	StageTimeout   time.Duration `json:"stage_timeout"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		MockLLMURL:     DefaultMockLLMURL,
		CommandTimeout: DefaultCommandTimeout,
		SetupTimeout:   DefaultSetupTimeout,
		StageTimeout:   DefaultStageTimeout,
	}
}
