package notify

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Channel kinds.
const (
	KindSlack    = "slack"
	KindDiscord  = "discord"
	KindTelegram = "telegram"
	KindGeneric  = "generic"
)

const defaultDedupeWindow = 5 * time.Minute

// ChannelConfig declares one delivery channel.
type ChannelConfig struct {
	Name          string `yaml:"name"`
	Kind          string `yaml:"kind"`
	WebhookURL    string `yaml:"webhook_url"`
	ChatID        string `yaml:"chat_id"`       // telegram only
	MinSeverity   string `yaml:"min_severity"`  // default info
	RatePerMinute int    `yaml:"rate_per_minute"` // default 60
	Enabled       *bool  `yaml:"enabled"`       // default true

	minSeverity Severity
}

// Config is the channel registry file.
type Config struct {
	DedupeWindow time.Duration   `yaml:"dedupe_window"` // default 5m
	Channels     []ChannelConfig `yaml:"channels"`
}

// LoadConfig reads and validates a channel registry. The returned
// config is safe to hand to a Dispatcher unchanged.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read notify config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates YAML config bytes.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse notify config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UnmarshalYAML accepts durations written as Go duration strings
// ("90s", "5m"), the same form the pipeline manifests use.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		DedupeWindow string          `yaml:"dedupe_window"`
		Channels     []ChannelConfig `yaml:"channels"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Channels = raw.Channels
	if raw.DedupeWindow != "" {
		d, err := time.ParseDuration(raw.DedupeWindow)
		if err != nil {
			return fmt.Errorf("dedupe_window: %w", err)
		}
		c.DedupeWindow = d
	}
	return nil
}

func (c *Config) validate() error {
	if c.DedupeWindow == 0 {
		c.DedupeWindow = defaultDedupeWindow
	}
	if c.DedupeWindow < 0 {
		return fmt.Errorf("notify config: dedupe_window must not be negative")
	}

	seen := make(map[string]bool, len(c.Channels))
	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.Name == "" {
			return fmt.Errorf("notify config: channel %d: missing name", i)
		}
		if seen[ch.Name] {
			return fmt.Errorf("notify config: duplicate channel %q", ch.Name)
		}
		seen[ch.Name] = true

		switch ch.Kind {
		case KindSlack, KindDiscord, KindGeneric:
		case KindTelegram:
			if ch.ChatID == "" {
				return fmt.Errorf("notify config: channel %q: telegram needs chat_id", ch.Name)
			}
		default:
			return fmt.Errorf("notify config: channel %q: unknown kind %q", ch.Name, ch.Kind)
		}
		if ch.WebhookURL == "" {
			return fmt.Errorf("notify config: channel %q: missing webhook_url", ch.Name)
		}

		if ch.MinSeverity == "" {
			ch.MinSeverity = "info"
		}
		sev, err := ParseSeverity(ch.MinSeverity)
		if err != nil {
			return fmt.Errorf("notify config: channel %q: %w", ch.Name, err)
		}
		ch.minSeverity = sev

		if ch.RatePerMinute == 0 {
			ch.RatePerMinute = 60
		}
		if ch.RatePerMinute < 0 {
			return fmt.Errorf("notify config: channel %q: rate_per_minute must not be negative", ch.Name)
		}
	}
	return nil
}

func (c ChannelConfig) enabled() bool {
	return c.Enabled == nil || *c.Enabled
}
