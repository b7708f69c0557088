// Package config provides configuration management for Foreman.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for Foreman.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Ollama  OllamaConfig  `mapstructure:"ollama"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Codex   CodexConfig   `mapstructure:"codex"`
	Debate  DebateConfig  `mapstructure:"debate"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// PathsConfig holds the directory layout shared with external workers.
type PathsConfig struct {
	// InboxDir is the shared drop directory for TASK_* and RESULT_* files.
	InboxDir string `mapstructure:"inboxDir"`

	// AgentsDir is the root scanned for agent descriptor subdirectories.
	AgentsDir string `mapstructure:"agentsDir"`

	// StateDir holds the persisted task table.
	StateDir string `mapstructure:"stateDir"`

	// LogsDir holds daily audit log files.
	LogsDir string `mapstructure:"logsDir"`
}

// OllamaConfig holds local inference service configuration.
type OllamaConfig struct {
	URL          string `mapstructure:"url"`
	Timeout      int    `mapstructure:"timeout"` // total request timeout in seconds
	DefaultModel string `mapstructure:"defaultModel"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// CodexConfig holds the codex helper-script configuration.
type CodexConfig struct {
	Script  string `mapstructure:"script"`
	Repo    string `mapstructure:"repo"`
	Timeout int    `mapstructure:"timeout"` // wall-clock timeout in seconds
}

// DebateConfig holds multi-agent debate configuration.
type DebateConfig struct {
	Concurrency int `mapstructure:"concurrency"` // per-round parallel LLM calls
}

// QueueConfig controls the periodic queue drain.
// A zero DrainInterval disables auto-dispatch of ready pending tasks.
type QueueConfig struct {
	DrainInterval int `mapstructure:"drainInterval"` // in seconds, 0 disables
}

// DrainIntervalDuration returns the drain interval as a time.Duration.
func (q *QueueConfig) DrainIntervalDuration() time.Duration {
	return time.Duration(q.DrainInterval) * time.Second
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// TimeoutDuration returns the total request timeout as a time.Duration.
func (o *OllamaConfig) TimeoutDuration() time.Duration {
	return time.Duration(o.Timeout) * time.Second
}

// TimeoutDuration returns the subprocess timeout as a time.Duration.
func (c *CodexConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// TasksFile returns the path of the persisted task table.
func (p *PathsConfig) TasksFile() string {
	return filepath.Join(p.StateDir, "tasks.json")
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("FOREMAN_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8800)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 300)

	// Path defaults — single-host layout under the working directory
	v.SetDefault("paths.inboxDir", "inbox")
	v.SetDefault("paths.agentsDir", "agents")
	v.SetDefault("paths.stateDir", "state")
	v.SetDefault("paths.logsDir", "logs")

	// Ollama defaults
	v.SetDefault("ollama.url", "http://localhost:11434")
	v.SetDefault("ollama.timeout", 120)
	v.SetDefault("ollama.defaultModel", "dolphin-llama3:latest")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "foreman")
	v.SetDefault("nats.maxReconnects", 10)

	// Codex defaults
	v.SetDefault("codex.script", "")
	v.SetDefault("codex.repo", ".")
	v.SetDefault("codex.timeout", 300)

	// Debate defaults
	v.SetDefault("debate.concurrency", 4)

	// Queue drain is opt-in; operators who want hands-off dispatch set an
	// interval
	v.SetDefault("queue.drainInterval", 0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix FOREMAN_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/foreman/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("FOREMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys)
	_ = v.BindEnv("paths.inboxDir", "FOREMAN_PATHS_INBOX_DIR")
	_ = v.BindEnv("paths.agentsDir", "FOREMAN_PATHS_AGENTS_DIR")
	_ = v.BindEnv("paths.stateDir", "FOREMAN_PATHS_STATE_DIR")
	_ = v.BindEnv("paths.logsDir", "FOREMAN_PATHS_LOGS_DIR")
	_ = v.BindEnv("ollama.defaultModel", "FOREMAN_OLLAMA_DEFAULT_MODEL")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/foreman/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Ollama.URL == "" {
		errs = append(errs, "ollama.url is required")
	}
	if cfg.Ollama.Timeout <= 0 {
		errs = append(errs, "ollama.timeout must be positive")
	}

	if cfg.Codex.Timeout <= 0 {
		errs = append(errs, "codex.timeout must be positive")
	}

	if cfg.Debate.Concurrency <= 0 {
		errs = append(errs, "debate.concurrency must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
