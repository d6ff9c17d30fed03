package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvPort, "")
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvXActionsAPI, "")
	t.Setenv(EnvSessionCookie, "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "http://localhost:3100", cfg.BaseURL)
	assert.Empty(t, cfg.XActionsAPIURL)
	assert.Equal(t, "XActions A2A Agent", cfg.AgentName)
	assert.Equal(t, 10000, cfg.TaskCapacity)
	assert.Equal(t, 100, cfg.RateLimitPerMinute)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvPort, "8080")
	t.Setenv(EnvBaseURL, "https://agent.example")
	t.Setenv(EnvXActionsAPI, "http://executor:4000")
	t.Setenv(EnvSessionCookie, "cookie123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "https://agent.example", cfg.BaseURL)
	assert.Equal(t, "http://executor:4000", cfg.XActionsAPIURL)
	assert.Equal(t, "cookie123", cfg.SessionCookie)
}

func TestLoad_BaseURLFollowsPort(t *testing.T) {
	t.Setenv(EnvPort, "9001")
	t.Setenv(EnvBaseURL, "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9001", cfg.BaseURL)
}

func TestLoad_RejectsBadPort(t *testing.T) {
	t.Setenv(EnvPort, "not-a-port")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvPort)
}

func TestConfig_Dirs(t *testing.T) {
	cfg := &Config{DataDir: filepath.Join("home", ".xactions")}
	assert.Equal(t, filepath.Join("home", ".xactions", "a2a"), cfg.A2ADir())
	assert.Equal(t, filepath.Join("home", ".xactions", "agents"), cfg.AgentsDir())
}
