// Package config loads and validates the movewatch configuration.
//
// DESIGN: All core settings MUST come from the YAML file. Secrets (database
// URL, gateway keys, VAPID keys) are referenced with ${VAR:-default} syntax
// and resolved from the environment at load time.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the movewatch service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`   // HTTP server settings
	Database DatabaseConfig `yaml:"database"` // persistence settings
	Monitor  MonitorConfig  `yaml:"monitor"`  // background loop settings
	Channels ChannelsConfig `yaml:"channels"` // outbound notification channels
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // Port to listen on
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Max time to read request
	WriteTimeout time.Duration `yaml:"write_timeout"` // Max time to write response
}

// DatabaseConfig selects the persistence backend.
// A postgres:// or postgresql:// URL selects the pgx driver; anything else is
// treated as an SQLite path (":memory:" works for tests).
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// MonitorConfig contains settings for the monitoring loop.
type MonitorConfig struct {
	Period   time.Duration `yaml:"period"`   // sleep between passes
	Timezone string        `yaml:"timezone"` // fixed civil timezone, e.g. America/Costa_Rica
}

// ChannelsConfig groups the outbound channel settings.
type ChannelsConfig struct {
	Text TextChannelConfig `yaml:"text"`
	Push PushChannelConfig `yaml:"push"`
}

// TextChannelConfig configures the WhatsApp text gateway. With no recipients
// the channel is disabled.
type TextChannelConfig struct {
	GatewayURL string          `yaml:"gateway_url"` // e.g. https://api.callmebot.com/whatsapp.php
	Timeout    time.Duration   `yaml:"timeout"`     // per-recipient delivery timeout
	Recipients []TextRecipient `yaml:"recipients"`
}

// TextRecipient is one (phone, api key) pair registered with the gateway.
type TextRecipient struct {
	Phone  string `yaml:"phone"`
	APIKey string `yaml:"api_key"`
}

// PushChannelConfig configures web push delivery. With empty VAPID keys the
// channel is disabled.
type PushChannelConfig struct {
	VAPIDPublicKey  string        `yaml:"vapid_public_key"`
	VAPIDPrivateKey string        `yaml:"vapid_private_key"`
	Subscriber      string        `yaml:"subscriber"` // mailto: contact for the push service
	Timeout         time.Duration `yaml:"timeout"`    // per-endpoint delivery timeout
}

// dropEmptyRecipients removes recipient entries whose env vars resolved to
// nothing, so an unset optional number just disables that slot.
func (t *TextChannelConfig) dropEmptyRecipients() {
	kept := t.Recipients[:0]
	for _, r := range t.Recipients {
		if r.Phone == "" && r.APIKey == "" {
			continue
		}
		kept = append(kept, r)
	}
	t.Recipients = kept
}

// expandEnvWithDefaults expands environment variables with support for
// default values. Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file.
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Channels.Text.dropEmptyRecipients()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	if c.Monitor.Period == 0 {
		return fmt.Errorf("monitor.period is required")
	}
	if c.Monitor.Timezone == "" {
		return fmt.Errorf("monitor.timezone is required")
	}

	return c.Channels.Validate()
}

// Validate checks channel settings. Both channels may be disabled; a
// partially configured channel is an error.
func (c *ChannelsConfig) Validate() error {
	for i, r := range c.Text.Recipients {
		if r.Phone == "" || r.APIKey == "" {
			return fmt.Errorf("channels.text.recipients[%d]: phone and api_key are required", i)
		}
	}
	if len(c.Text.Recipients) > 0 && c.Text.GatewayURL == "" {
		return fmt.Errorf("channels.text.gateway_url is required when recipients are configured")
	}

	pub, priv := c.Push.VAPIDPublicKey, c.Push.VAPIDPrivateKey
	if (pub == "") != (priv == "") {
		return fmt.Errorf("channels.push: vapid_public_key and vapid_private_key must be set together")
	}

	return nil
}
