package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

// telegramMessageLimit is the hard upper bound Telegram enforces per message.
const telegramMessageLimit = 4096

var telegramTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Validator validates individual configuration values
type Validator struct {
	cronParser cron.Parser
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// ValidateTelegramToken validates a Telegram bot token.
// Tokens have the form <bot_id>:<secret>.
func (v *Validator) ValidateTelegramToken(token string) error {
	if token == "" {
		return fmt.Errorf("bot token is required")
	}
	if !telegramTokenPattern.MatchString(token) {
		return fmt.Errorf("invalid bot token format")
	}
	return nil
}

// ValidateTimeout validates a timeout expressed in seconds.
func (v *Validator) ValidateTimeout(name string, seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("%s must be greater than 0 (got %d)", name, seconds)
	}
	return nil
}

// ValidateMessageLength validates the outbound chunk size.
func (v *Validator) ValidateMessageLength(n int) error {
	if n <= 0 || n > telegramMessageLimit {
		return fmt.Errorf("max_message_length must be between 1 and %d (got %d)", telegramMessageLimit, n)
	}
	return nil
}

// ValidatePort validates a TCP port number.
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}
	return nil
}

// ValidateCronSpec validates a standard cron expression or descriptor such as "@every 10m".
func (v *Validator) ValidateCronSpec(spec string) error {
	if _, err := v.cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateLogLevel validates a log level
func (v *Validator) ValidateLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid log level: %s (must be debug, info, warn or error)", level)
}
