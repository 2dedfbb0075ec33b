// Package config handles agent kernel configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/genai/config.yaml, /etc/genai/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "genai", "config.yaml"))
	}

	paths = append(paths, "/etc/genai/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all kernel configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Model     ModelConfig     `yaml:"model"`
	Agent     AgentConfig     `yaml:"agent"`
	Weather   WeatherConfig   `yaml:"weather"`
	ShellExec ShellExecConfig `yaml:"shell_exec"`
	Posts     PostsConfig     `yaml:"posts"`
	MCP       MCPConfig       `yaml:"mcp"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// Addr returns the host:port the HTTP server binds to.
func (l ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Address, l.Port)
}

// ModelConfig selects the model caller.
type ModelConfig struct {
	Provider string `yaml:"provider"` // openai (any OpenAI-compatible endpoint) or ollama
	Name     string `yaml:"name"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	// OllamaURL is used when Provider is ollama.
	OllamaURL string `yaml:"ollama_url"`
}

// AgentConfig bounds the reasoning loop.
type AgentConfig struct {
	SystemPrompt     string `yaml:"system_prompt"` // empty uses the built-in prompt
	MaxSteps         int    `yaml:"max_steps"`
	MalformedRetries int    `yaml:"malformed_retries"`
	ModelTimeoutSec  int    `yaml:"model_timeout_sec"`
	ToolTimeoutSec   int    `yaml:"tool_timeout_sec"`
	// RemoteToolServers are session router URLs whose tools are imported at startup.
	RemoteToolServers []string `yaml:"remote_tool_servers"`
}

// ModelTimeout returns the per-call model deadline.
func (a AgentConfig) ModelTimeout() time.Duration {
	return time.Duration(a.ModelTimeoutSec) * time.Second
}

// ToolTimeout returns the per-invocation tool deadline.
func (a AgentConfig) ToolTimeout() time.Duration {
	return time.Duration(a.ToolTimeoutSec) * time.Second
}

// WeatherConfig defines the weather lookup. Without an API key the tool
// answers with a canned reply.
type WeatherConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ShellExecConfig defines shell execution capabilities.
type ShellExecConfig struct {
	// Enabled registers the executeCommand tool. Disabled by default for safety.
	Enabled bool `yaml:"enabled"`
	// Backend is "local" (host /bin/sh) or "docker" (throwaway container).
	Backend string `yaml:"backend"`
	// Image is the container image used by the docker backend.
	Image      string `yaml:"image"`
	WorkingDir string `yaml:"working_dir"`
	// DeniedPatterns are appended to the built-in blocklist.
	DeniedPatterns    []string `yaml:"denied_patterns"`
	DefaultTimeoutSec int      `yaml:"default_timeout_sec"`
	MaxOutputBytes    int      `yaml:"max_output_bytes"`
	MaxConcurrent     int      `yaml:"max_concurrent"`
}

// PostsConfig selects the post repository.
type PostsConfig struct {
	Backend string `yaml:"backend"` // memory or duckdb
	// DSN is the DuckDB data source; empty opens an in-memory database.
	DSN string `yaml:"dsn"`
}

// MCPConfig defines the session router endpoint.
type MCPConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Path               string `yaml:"path"`
	NotificationBuffer int    `yaml:"notification_buffer"`
	// Instructions is returned to clients from initialize.
	Instructions string `yaml:"instructions"`
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Model: ModelConfig{
			Provider:  "openai",
			Name:      "gemini-2.0-flash",
			BaseURL:   "https://generativelanguage.googleapis.com/v1beta/openai",
			OllamaURL: "http://localhost:11434",
		},
		Agent: AgentConfig{
			MaxSteps:         20,
			MalformedRetries: 2,
			ModelTimeoutSec:  60,
			ToolTimeoutSec:   30,
		},
		Weather: WeatherConfig{
			BaseURL: "https://api.weatherapi.com/v1",
		},
		ShellExec: ShellExecConfig{
			Backend:           "local",
			Image:             "alpine:3.20",
			DefaultTimeoutSec: 30,
			MaxOutputBytes:    8192,
			MaxConcurrent:     4,
		},
		Posts: PostsConfig{Backend: "memory"},
		MCP: MCPConfig{
			Enabled:            true,
			Path:               "/mcp",
			NotificationBuffer: 64,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from a YAML file over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("GEMINI_API_KEY"); v != "" {
		c.Model.APIKey = v
	}
	if v := getenv("WEATHER_API_KEY"); v != "" {
		c.Weather.APIKey = v
	}
	if v := getenv("OLLAMA_HOST"); v != "" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		c.Model.OllamaURL = v
	}
	if v := getenv("GENAI_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("GENAI_LISTEN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GENAI_LISTEN_PORT: %w", err)
		}
		c.Listen.Port = port
	}
	return nil
}

// Validate rejects configurations the kernel cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", c.Listen.Port))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.Model.Provider {
	case "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("model.provider %q (valid: openai, ollama)", c.Model.Provider))
	}
	if c.Agent.MaxSteps <= 0 {
		errs = append(errs, errors.New("agent.max_steps must be positive"))
	}
	if c.Agent.MalformedRetries < 0 {
		errs = append(errs, errors.New("agent.malformed_retries must not be negative"))
	}
	if c.Agent.ModelTimeoutSec <= 0 || c.Agent.ToolTimeoutSec <= 0 {
		errs = append(errs, errors.New("agent timeouts must be positive"))
	}
	switch c.ShellExec.Backend {
	case "local", "docker":
	default:
		errs = append(errs, fmt.Errorf("shell_exec.backend %q (valid: local, docker)", c.ShellExec.Backend))
	}
	switch c.Posts.Backend {
	case "memory", "duckdb":
	default:
		errs = append(errs, fmt.Errorf("posts.backend %q (valid: memory, duckdb)", c.Posts.Backend))
	}
	if c.MCP.Enabled && !strings.HasPrefix(c.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", c.MCP.Path))
	}

	return errors.Join(errs...)
}
