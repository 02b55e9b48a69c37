// Package config provides configuration management for the review agent
// service. It supports loading configuration from environment variables,
// config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Git      GitConfig      `mapstructure:"git"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Session  SessionConfig  `mapstructure:"session"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds Postgres connection configuration for the run
// history store. An empty host means the in-memory store is used.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
}

// NATSConfig holds NATS messaging configuration. An empty URL means the
// in-memory event bus is used.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// GitConfig holds repository preparation configuration.
type GitConfig struct {
	WorkspaceRoot string `mapstructure:"workspaceRoot"` // base directory for working copies
	DefaultBranch string `mapstructure:"defaultBranch"`
	RemoteBase    string `mapstructure:"remoteBase"` // prefix for bare repo identifiers, e.g. git@github.com:
}

// AgentConfig holds agent process configuration.
type AgentConfig struct {
	// Command is the agent CLI binary to execute.
	Command string `mapstructure:"command"`

	// Args are extra arguments appended to the agent invocation.
	Args []string `mapstructure:"args"`

	// Runtime selects how the agent process runs: "subprocess" or "docker".
	Runtime string `mapstructure:"runtime"`

	// DockerImage is the image used when runtime is "docker".
	DockerImage string `mapstructure:"dockerImage"`

	// DockerHost is the Docker daemon address when runtime is "docker".
	DockerHost string `mapstructure:"dockerHost"`
}

// SessionConfig holds the session protocol tunables.
type SessionConfig struct {
	// PermissionTimeoutSec bounds how long a tool-use permission request
	// waits for a client response before it is denied.
	PermissionTimeoutSec int `mapstructure:"permissionTimeoutSec"`

	// SettingsTimeoutSec bounds how long a run waits for the client's
	// settings message before proceeding with defaults.
	SettingsTimeoutSec int `mapstructure:"settingsTimeoutSec"`

	// PollIntervalMs governs how quickly interrupts and file-based
	// completion are observed. A responsiveness/cost trade-off.
	PollIntervalMs int `mapstructure:"pollIntervalMs"`

	// MinAnswerLength is the minimum length of an answer/summary field
	// for a tracked item to count as resolved.
	MinAnswerLength int `mapstructure:"minAnswerLength"`
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

// PermissionTimeout returns the permission timeout as a time.Duration.
func (s *SessionConfig) PermissionTimeout() time.Duration {
	return time.Duration(s.PermissionTimeoutSec) * time.Second
}

// SettingsTimeout returns the settings wait bound as a time.Duration.
func (s *SessionConfig) SettingsTimeout() time.Duration {
	return time.Duration(s.SettingsTimeoutSec) * time.Second
}

// PollInterval returns the driver poll interval as a time.Duration.
func (s *SessionConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// detectDefaultLogFormat returns "json" in production environments and
// "text" for terminal/development use.
func detectDefaultLogFormat() string {
	if env := os.Getenv("REVIEWD_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8420)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Database defaults - empty host means in-memory run history
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "reviewd")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "reviewd")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 10)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "reviewd")
	v.SetDefault("nats.maxReconnects", 10)

	// Git defaults
	v.SetDefault("git.workspaceRoot", "~/.reviewd/workspaces")
	v.SetDefault("git.defaultBranch", "main")
	v.SetDefault("git.remoteBase", "")

	// Agent defaults
	v.SetDefault("agent.command", "claude")
	v.SetDefault("agent.args", []string{})
	v.SetDefault("agent.runtime", "subprocess")
	v.SetDefault("agent.dockerImage", "")
	v.SetDefault("agent.dockerHost", "unix:///var/run/docker.sock")

	// Session protocol defaults
	v.SetDefault("session.permissionTimeoutSec", 30)
	v.SetDefault("session.settingsTimeoutSec", 5)
	v.SetDefault("session.pollIntervalMs", 500)
	v.SetDefault("session.minAnswerLength", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and
// defaults. Environment variables use the prefix REVIEWD_ with snake_case
// naming. The config file is config.yaml in the current directory or
// /etc/reviewd/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("REVIEWD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so bind keys where env var naming differs from the config key.
	_ = v.BindEnv("git.workspaceRoot", "REVIEWD_GIT_WORKSPACE_ROOT")
	_ = v.BindEnv("agent.dockerImage", "REVIEWD_AGENT_DOCKER_IMAGE")
	_ = v.BindEnv("session.permissionTimeoutSec", "REVIEWD_SESSION_PERMISSION_TIMEOUT_SEC")
	_ = v.BindEnv("session.settingsTimeoutSec", "REVIEWD_SESSION_SETTINGS_TIMEOUT_SEC")
	_ = v.BindEnv("session.pollIntervalMs", "REVIEWD_SESSION_POLL_INTERVAL_MS")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/reviewd/")

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
// Database and NATS are optional; most fields have safe defaults.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	// Database validation - only if host is set (optional for in-memory mode)
	if cfg.Database.Host != "" {
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required when database.host is set")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required when database.host is set")
		}
	}

	if cfg.Agent.Command == "" {
		errs = append(errs, "agent.command is required")
	}
	switch cfg.Agent.Runtime {
	case "subprocess", "docker":
	default:
		errs = append(errs, "agent.runtime must be one of: subprocess, docker")
	}
	if cfg.Agent.Runtime == "docker" && cfg.Agent.DockerImage == "" {
		errs = append(errs, "agent.dockerImage is required when agent.runtime is docker")
	}

	if cfg.Session.PermissionTimeoutSec <= 0 {
		errs = append(errs, "session.permissionTimeoutSec must be positive")
	}
	if cfg.Session.SettingsTimeoutSec <= 0 {
		errs = append(errs, "session.settingsTimeoutSec must be positive")
	}
	if cfg.Session.PollIntervalMs <= 0 {
		errs = append(errs, "session.pollIntervalMs must be positive")
	}
	if cfg.Session.MinAnswerLength <= 0 {
		errs = append(errs, "session.minAnswerLength must be positive")
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
