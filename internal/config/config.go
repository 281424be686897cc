package config

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Config represents the main configuration
type Config struct {
	Telegram  TelegramConfig  `json:"telegram" mapstructure:"telegram"`
	Tools     ToolsConfig     `json:"tools" mapstructure:"tools"`
	RateLimit RateLimitConfig `json:"rate_limit" mapstructure:"rate_limit"`
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Tracing   TracingConfig   `json:"tracing" mapstructure:"tracing"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
	DataDir   string          `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Enabled      bool    `json:"enabled" mapstructure:"enabled"`
	BotToken     string  `json:"bot_token" mapstructure:"bot_token"`
	AllowedUsers []int64 `json:"allowed_users" mapstructure:"allowed_users"` // empty allows everyone
	PollTimeout  int     `json:"poll_timeout" mapstructure:"poll_timeout"`   // seconds
}

// ToolsConfig controls the tool catalog and executor limits
type ToolsConfig struct {
	CatalogFile          string `json:"catalog_file" mapstructure:"catalog_file"` // empty uses the built-in catalog
	DefaultGroup         string `json:"default_group" mapstructure:"default_group"`
	RemoteTimeout        int    `json:"remote_timeout" mapstructure:"remote_timeout"` // seconds
	LocalTimeout         int    `json:"local_timeout" mapstructure:"local_timeout"`   // seconds
	UserAgent            string `json:"user_agent" mapstructure:"user_agent"`
	MaxMessageLength     int    `json:"max_message_length" mapstructure:"max_message_length"`
	AvailabilitySchedule string `json:"availability_schedule" mapstructure:"availability_schedule"`

	Sandbox SandboxConfig `json:"sandbox" mapstructure:"sandbox"`
}

// SandboxConfig selects where local tools run
type SandboxConfig struct {
	Runtime     string `json:"runtime" mapstructure:"runtime"` // host or docker
	DockerImage string `json:"docker_image" mapstructure:"docker_image"`
	Network     string `json:"network" mapstructure:"network"`
	MaxMemoryMB int    `json:"max_memory_mb" mapstructure:"max_memory_mb"`
}

// RateLimitConfig limits recon requests per Telegram user and per HTTP client
// address
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxConcurrent     int `json:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig holds HTTP adapter configuration
type ServerConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Audit     bool   `json:"audit" mapstructure:"audit"` // writes audit.log in the data directory
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Enabled:      true,
			AllowedUsers: []int64{},
			PollTimeout:  60,
		},
		Tools: ToolsConfig{
			DefaultGroup:         "basic",
			RemoteTimeout:        45,
			LocalTimeout:         60,
			UserAgent:            "Mozilla/5.0 (compatible; ReconDoraBot/1.0; +https://github.com/harun/recondora)",
			MaxMessageLength:     4096,
			AvailabilitySchedule: "@every 10m",
			Sandbox: SandboxConfig{
				Runtime:     "host",
				DockerImage: "instrumentisto/nmap:latest",
				Network:     "bridge",
			},
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 5,
			MaxConcurrent:     1,
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    5000,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "recondora",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
			MaxSize:   50,
			MaxAge:    14,
			Compress:  true,
			Audit:     true,
		},
	}
}

// RemoteTimeoutDuration returns the per-request timeout of remote tools.
func (t ToolsConfig) RemoteTimeoutDuration() time.Duration {
	return time.Duration(t.RemoteTimeout) * time.Second
}

// LocalTimeoutDuration returns the per-process timeout of local tools.
func (t ToolsConfig) LocalTimeoutDuration() time.Duration {
	return time.Duration(t.LocalTimeout) * time.Second
}

// Addr returns the listen address of the HTTP adapter.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// IsLoopback reports whether the adapter only listens on the local host.
func (s ServerConfig) IsLoopback() bool {
	if s.Host == "localhost" {
		return true
	}
	ip := net.ParseIP(s.Host)
	return ip != nil && ip.IsLoopback()
}

// IsUserAllowed reports whether a Telegram user may issue commands.
func (t TelegramConfig) IsUserAllowed(userID int64) bool {
	if len(t.AllowedUsers) == 0 {
		return true
	}
	for _, id := range t.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	masked.Telegram.BotToken = maskSecret(c.Telegram.BotToken)
	masked.Server.SharedSecret = maskSecret(c.Server.SharedSecret)
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	v := NewValidator()

	if c.Telegram.Enabled {
		if err := v.ValidateTelegramToken(c.Telegram.BotToken); err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		if c.Telegram.PollTimeout < 0 {
			return fmt.Errorf("telegram: poll_timeout must not be negative")
		}
	}

	if c.Tools.DefaultGroup == "" {
		return fmt.Errorf("tools: default_group is required")
	}
	if err := v.ValidateTimeout("remote_timeout", c.Tools.RemoteTimeout); err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	if err := v.ValidateTimeout("local_timeout", c.Tools.LocalTimeout); err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	if err := v.ValidateMessageLength(c.Tools.MaxMessageLength); err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	if c.Tools.AvailabilitySchedule != "" {
		if err := v.ValidateCronSpec(c.Tools.AvailabilitySchedule); err != nil {
			return fmt.Errorf("tools: %w", err)
		}
	}

	switch c.Tools.Sandbox.Runtime {
	case "", "host":
	case "docker":
		if c.Tools.Sandbox.DockerImage == "" {
			return fmt.Errorf("tools: sandbox.docker_image is required for the docker runtime")
		}
	default:
		return fmt.Errorf("tools: unknown sandbox runtime %q", c.Tools.Sandbox.Runtime)
	}

	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.MaxConcurrent < 0 {
		return fmt.Errorf("rate_limit: limits must not be negative")
	}

	if c.Server.Enabled {
		if err := v.ValidatePort(c.Server.Port); err != nil {
			return fmt.Errorf("server: %w", err)
		}
		if !c.Server.IsLoopback() && strings.TrimSpace(c.Server.SharedSecret) == "" {
			return fmt.Errorf("server: shared_secret is required when listening on %q", c.Server.Host)
		}
	}

	if err := v.ValidateLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	if !c.Telegram.Enabled && !c.Server.Enabled {
		return fmt.Errorf("at least one of telegram or server must be enabled")
	}

	return nil
}
