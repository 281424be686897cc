package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	appDirName     = ".recondora"
	configFileName = "recondora.json"
	envPrefix      = "RECONDORA"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file (if present) and applies environment overrides.
// A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to get home directory")
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed variables used by common hosting setups
	if err := v.BindEnv("telegram.bot_token", envPrefix+"_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}
	if err := v.BindEnv("server.port", envPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(configPath)
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "recondora.log")
	}

	return cfg, nil
}

// setDefaults registers every key so that environment variables override
// values even when no config file exists.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("telegram.enabled", cfg.Telegram.Enabled)
	v.SetDefault("telegram.bot_token", cfg.Telegram.BotToken)
	v.SetDefault("telegram.allowed_users", cfg.Telegram.AllowedUsers)
	v.SetDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout)

	v.SetDefault("tools.catalog_file", cfg.Tools.CatalogFile)
	v.SetDefault("tools.default_group", cfg.Tools.DefaultGroup)
	v.SetDefault("tools.remote_timeout", cfg.Tools.RemoteTimeout)
	v.SetDefault("tools.local_timeout", cfg.Tools.LocalTimeout)
	v.SetDefault("tools.user_agent", cfg.Tools.UserAgent)
	v.SetDefault("tools.max_message_length", cfg.Tools.MaxMessageLength)
	v.SetDefault("tools.availability_schedule", cfg.Tools.AvailabilitySchedule)
	v.SetDefault("tools.sandbox.runtime", cfg.Tools.Sandbox.Runtime)
	v.SetDefault("tools.sandbox.docker_image", cfg.Tools.Sandbox.DockerImage)
	v.SetDefault("tools.sandbox.network", cfg.Tools.Sandbox.Network)
	v.SetDefault("tools.sandbox.max_memory_mb", cfg.Tools.Sandbox.MaxMemoryMB)

	v.SetDefault("rate_limit.requests_per_minute", cfg.RateLimit.RequestsPerMinute)
	v.SetDefault("rate_limit.max_concurrent", cfg.RateLimit.MaxConcurrent)

	v.SetDefault("server.enabled", cfg.Server.Enabled)
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.shared_secret", cfg.Server.SharedSecret)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
	v.SetDefault("logging.compress", cfg.Logging.Compress)
	v.SetDefault("logging.audit", cfg.Logging.Audit)

	v.SetDefault("data_dir", cfg.DataDir)
}

// Save writes the configuration to the config file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to get home directory")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("telegram", cfg.Telegram)
	v.Set("tools", cfg.Tools)
	v.Set("rate_limit", cfg.RateLimit)
	v.Set("server", cfg.Server)
	v.Set("tracing", cfg.Tracing)
	v.Set("logging", cfg.Logging)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, appDirName, configFileName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
