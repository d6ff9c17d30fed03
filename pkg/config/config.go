// Package config holds runtime configuration resolved from the
// environment. A .env.local or .env file in the working directory is
// loaded first, so local development does not require exporting
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names understood by the runtime.
const (
	EnvPort          = "A2A_PORT"
	EnvBaseURL       = "A2A_BASE_URL"
	EnvXActionsAPI   = "XACTIONS_API_URL"
	EnvSessionCookie = "X_SESSION_COOKIE"
)

// DefaultPort is used when A2A_PORT is unset.
const DefaultPort = 3100

// Config is the resolved runtime configuration.
type Config struct {
	Port    int
	BaseURL string

	// XActionsAPIURL points the HTTP bridge at the tool executor. Empty
	// means the local bridge is used.
	XActionsAPIURL string

	// SessionCookie is forwarded to the tool executor for platform access.
	SessionCookie string

	// DataDir is the root for persisted state (~/.xactions).
	DataDir string

	// AgentName/AgentVersion identify this runtime on its card.
	AgentName    string
	AgentVersion string

	// TaskCapacity bounds the in-memory task store.
	TaskCapacity int

	// RateLimitPerMinute bounds requests per client IP.
	RateLimitPerMinute int

	// Timeouts.
	CardFetchTimeout  time.Duration
	HealthTimeout     time.Duration
	DelegationTimeout time.Duration
}

// LoadEnvFiles loads .env.local then .env, ignoring missing files.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Load resolves the configuration from the environment.
func Load() (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:               DefaultPort,
		XActionsAPIURL:     os.Getenv(EnvXActionsAPI),
		SessionCookie:      os.Getenv(EnvSessionCookie),
		AgentName:          "XActions A2A Agent",
		AgentVersion:       "1.0.0",
		TaskCapacity:       10000,
		RateLimitPerMinute: 100,
		CardFetchTimeout:   5 * time.Second,
		HealthTimeout:      5 * time.Second,
		DelegationTimeout:  30 * time.Second,
	}

	if portStr := os.Getenv(EnvPort); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", EnvPort, portStr, err)
		}
		cfg.Port = port
	}

	cfg.BaseURL = os.Getenv(EnvBaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot resolve home directory: %w", err)
	}
	cfg.DataDir = filepath.Join(home, ".xactions")

	return cfg, nil
}

// A2ADir returns the directory holding auth material and secrets.
func (c *Config) A2ADir() string {
	return filepath.Join(c.DataDir, "a2a")
}

// AgentsDir returns the directory holding the remote agent registry and
// trust history.
func (c *Config) AgentsDir() string {
	return filepath.Join(c.DataDir, "agents")
}
