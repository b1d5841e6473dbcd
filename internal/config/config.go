// Package config provides configuration management for refine-service.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the service configuration.
type Config struct {
	Service    ServiceConfig    `toml:"service"`
	API        APIConfig        `toml:"api"`
	MCP        MCPConfig        `toml:"mcp"`
	LLM        LLMConfig        `toml:"llm"`
	Evaluation EvaluationConfig `toml:"evaluation"`
	Archive    ArchiveConfig    `toml:"archive"`
	Logging    LoggingConfig    `toml:"logging"`
}

// ServiceConfig contains service-level settings.
type ServiceConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	DataDir string `toml:"data_dir"`
}

// APIConfig contains REST API settings.
type APIConfig struct {
	Enabled bool `toml:"enabled"`
}

// MCPConfig contains MCP server settings.
type MCPConfig struct {
	Enabled bool `toml:"enabled"`
}

// LLMConfig contains model provider settings.
type LLMConfig struct {
	// Provider selects the backend: anthropic, ollama, or gemini.
	Provider string `toml:"provider"`

	// APIKey authenticates against the selected provider. Ollama runs
	// without one.
	APIKey string `toml:"api_key"`

	// BaseURL overrides the provider endpoint (mainly for ollama).
	BaseURL string `toml:"base_url"`

	// Role model assignments. Empty values fall back to the provider's
	// first model.
	TargetModel    string `toml:"target_model"`
	JudgeModel     string `toml:"judge_model"`
	AssistantModel string `toml:"assistant_model"`
}

// EvaluationConfig selects the evaluation strategy.
type EvaluationConfig struct {
	// Strategy is rule_based or llm_judge.
	Strategy string `toml:"strategy"`
}

// ArchiveConfig contains session search settings.
type ArchiveConfig struct {
	Enabled bool `toml:"enabled"`

	// EmbeddingAPIKey enables semantic search via Gemini embeddings.
	// Without it the archive falls back to keyword matching.
	EmbeddingAPIKey string `toml:"embedding_api_key"`
	EmbeddingModel  string `toml:"embedding_model"`

	// WatchDebounceMs is the file watcher settle time.
	WatchDebounceMs int `toml:"watch_debounce_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Output     []string `toml:"output"`
	Format     string   `toml:"format"`
	TimeFormat string   `toml:"time_format"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Host:    "127.0.0.1",
			Port:    8436,
			DataDir: DefaultDataDir(),
		},
		API: APIConfig{
			Enabled: true,
		},
		MCP: MCPConfig{
			Enabled: true,
		},
		LLM: LLMConfig{
			Provider: "ollama",
			APIKey:   os.Getenv("REFINE_API_KEY"),
		},
		Evaluation: EvaluationConfig{
			Strategy: "rule_based",
		},
		Archive: ArchiveConfig{
			Enabled:         true,
			EmbeddingAPIKey: os.Getenv("GEMINI_API_KEY"),
			WatchDebounceMs: 500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"console"},
			Format: "text",
		},
	}
}

// DefaultDataDir returns the default data directory based on OS.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "refine-service")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "refine-service")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "refine-service")
	default: // linux and others
		xdgData := os.Getenv("XDG_DATA_HOME")
		if xdgData != "" {
			return filepath.Join(xdgData, "refine-service")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".refine-service")
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.toml")
}

// Load loads configuration from a file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables in the config
	expanded := os.ExpandEnv(string(data))

	if err := toml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// Expand tilde in data_dir
	if strings.HasPrefix(cfg.Service.DataDir, "~/") {
		home, _ := os.UserHomeDir()
		cfg.Service.DataDir = filepath.Join(home, cfg.Service.DataDir[2:])
	}

	return cfg, nil
}

// Save saves the configuration to a file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Address returns the full address string for the HTTP server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Service.Host, c.Service.Port)
}

// SessionsDir returns the path to the session store directory.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.Service.DataDir, "sessions")
}

// LogPath returns the path to the service log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Service.DataDir, "logs", "refine-service.log")
}

// PIDPath returns the path to the service PID file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Service.DataDir, "refine-service.pid")
}

// EnsureDirectories creates all necessary directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Service.DataDir,
		c.SessionsDir(),
		filepath.Dir(c.LogPath()),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
