package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GEMINI_API_KEY", "WEATHER_API_KEY", "GENAI_LISTEN_PORT", "GENAI_LOG_LEVEL", "OLLAMA_HOST"} {
		t.Setenv(k, "")
	}
}

// ── FindConfig ─────────────────────────────────────────────────

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen:\n  port: 9999\n"), 0600))

	got, err := FindConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("listen:\n  port: 8080\n"), 0600))
	t.Chdir(dir)

	got, err := FindConfig("")
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", got)
}

// ── Load ───────────────────────────────────────────────────────

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Listen.Port)
	assert.Equal(t, 20, cfg.Agent.MaxSteps)
	assert.Equal(t, 2, cfg.Agent.MalformedRetries)
	assert.Equal(t, "/mcp", cfg.MCP.Path)
	assert.Equal(t, "memory", cfg.Posts.Backend)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_WEATHER_KEY", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
listen:
  port: 9090
agent:
  max_steps: 5
  malformed_retries: 0
weather:
  api_key: ${TEST_WEATHER_KEY}
shell_exec:
  enabled: true
  backend: docker
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Listen.Port)
	assert.Equal(t, 5, cfg.Agent.MaxSteps)
	assert.Equal(t, 0, cfg.Agent.MalformedRetries)
	assert.Equal(t, "from-env", cfg.Weather.APIKey)
	assert.True(t, cfg.ShellExec.Enabled)
	assert.Equal(t, "docker", cfg.ShellExec.Backend)
	// untouched keys keep their defaults
	assert.Equal(t, 30, cfg.Agent.ToolTimeoutSec)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [\n"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ExampleFileMatchesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Listen, cfg.Listen)
	assert.Equal(t, def.Model, cfg.Model)
	assert.Equal(t, def.Weather, cfg.Weather)
	assert.Equal(t, def.Posts, cfg.Posts)
	assert.Equal(t, def.MCP, cfg.MCP)
	assert.Equal(t, def.Agent.MaxSteps, cfg.Agent.MaxSteps)
	assert.Equal(t, def.Agent.MalformedRetries, cfg.Agent.MalformedRetries)
	assert.Empty(t, cfg.Agent.RemoteToolServers)
	assert.False(t, cfg.ShellExec.Enabled)
	assert.Equal(t, def.ShellExec.Image, cfg.ShellExec.Image)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GEMINI_API_KEY":    "gem",
		"WEATHER_API_KEY":   "wx",
		"GENAI_LISTEN_PORT": "7000",
		"GENAI_LOG_LEVEL":   "debug",
		"OLLAMA_HOST":       "gpu-box:11434",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, "gem", cfg.Model.APIKey)
	assert.Equal(t, "wx", cfg.Weather.APIKey)
	assert.Equal(t, 7000, cfg.Listen.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://gpu-box:11434", cfg.Model.OllamaURL)
}

func TestApplyEnv_BadPort(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) string {
		if k == "GENAI_LISTEN_PORT" {
			return "eighty"
		}
		return ""
	})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Listen.Port = 0 }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"provider", func(c *Config) { c.Model.Provider = "carrier-pigeon" }},
		{"max steps", func(c *Config) { c.Agent.MaxSteps = 0 }},
		{"retries", func(c *Config) { c.Agent.MalformedRetries = -1 }},
		{"backend", func(c *Config) { c.ShellExec.Backend = "ssh" }},
		{"posts", func(c *Config) { c.Posts.Backend = "redis" }},
		{"mcp path", func(c *Config) { c.MCP.Path = "mcp" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

// ── Logging ────────────────────────────────────────────────────

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"TRACE":   LevelTrace,
		" debug ": slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}

func TestNewLogger_TraceName(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "trace")
	require.NoError(t, err)

	logger.Log(t.Context(), LevelTrace, "raw payload")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "TRACE", line["level"])
}
