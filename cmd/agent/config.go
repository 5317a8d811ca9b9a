// Package main provides the climalert agent CLI.
package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/climalert/internal/agent"
	"github.com/good-yellow-bee/climalert/internal/alerting"
	"github.com/good-yellow-bee/climalert/internal/notifier"
	"github.com/good-yellow-bee/climalert/internal/security"
	"github.com/good-yellow-bee/climalert/internal/status"
	"github.com/good-yellow-bee/climalert/internal/storage"
)

// Config represents the agent configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Stream    StreamConfig    `yaml:"stream" toml:"stream"`
	Status    StatusConfig    `yaml:"status" toml:"status"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	API       ListenConfig    `yaml:"api" toml:"api"`
	Metrics   ListenConfig    `yaml:"metrics" toml:"metrics"`
	Notifiers NotifiersConfig `yaml:"notifiers" toml:"notifiers"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

// Duration is a time.Duration written as a string such as "3s".
type Duration time.Duration

// UnmarshalText parses the duration. TOML has no duration type, so both
// formats go through this.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig contains notification API settings.
type ServerConfig struct {
	BaseURL string                    `yaml:"base_url" toml:"base_url"`
	TLS     *security.ClientTLSConfig `yaml:"tls" toml:"tls"`
}

// AuthConfig selects the bearer token source.
type AuthConfig struct {
	Token     string `yaml:"token" toml:"token"`
	TokenFile string `yaml:"token_file" toml:"token_file"` // wins over token
}

// StreamConfig contains reconnect and heartbeat settings.
type StreamConfig struct {
	ReconnectBase     Duration `yaml:"reconnect_base" toml:"reconnect_base"`         // default: 3s
	MaxAttempts       int      `yaml:"max_attempts" toml:"max_attempts"`             // default: 5
	HeartbeatTimeout  Duration `yaml:"heartbeat_timeout" toml:"heartbeat_timeout"`   // default: 30s
	HeartbeatInterval Duration `yaml:"heartbeat_interval" toml:"heartbeat_interval"` // default: 5s
}

// StatusConfig contains status write coalescing settings.
type StatusConfig struct {
	Debounce    Duration `yaml:"debounce" toml:"debounce"`         // default: 300ms
	MaxAttempts int      `yaml:"max_attempts" toml:"max_attempts"` // default: 3
	RetryDelay  Duration `yaml:"retry_delay" toml:"retry_delay"`
}

// StorageConfig selects the history backend.
type StorageConfig struct {
	Driver     string   `yaml:"driver" toml:"driver"` // memory, jsonfile, sqlite, nats
	Path       string   `yaml:"path" toml:"path"`
	NATSURLs   []string `yaml:"nats_urls" toml:"nats_urls"`
	NATSBucket string   `yaml:"nats_bucket" toml:"nats_bucket"`
}

// ListenConfig is an optional listen address; empty disables the listener.
type ListenConfig struct {
	Address string `yaml:"address" toml:"address"`
}

// NotifiersConfig configures alert forwarding sinks.
type NotifiersConfig struct {
	Slack     *WebhookConfig  `yaml:"slack" toml:"slack"`
	Teams     *WebhookConfig  `yaml:"teams" toml:"teams"`
	Telegram  *TelegramConfig `yaml:"telegram" toml:"telegram"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

// WebhookConfig is an incoming webhook sink.
type WebhookConfig struct {
	WebhookURL string `yaml:"webhook_url" toml:"webhook_url"`
	Filter     string `yaml:"filter" toml:"filter"` // expr-lang expression, e.g. uf == "SP"
}

// TelegramConfig is the Telegram sink.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token" toml:"bot_token"`
	ChatID   string `yaml:"chat_id" toml:"chat_id"`
	APIBase  string `yaml:"api_base" toml:"api_base"`
	Filter   string `yaml:"filter" toml:"filter"`
}

// RateLimitConfig limits forwarded alerts per sink.
type RateLimitConfig struct {
	MaxPerWindow int      `yaml:"max_per_window" toml:"max_per_window"` // default: 10
	Window       Duration `yaml:"window" toml:"window"`                 // default: 1m
	Disabled     bool     `yaml:"disabled" toml:"disabled"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"` // trace, debug, info, warn, error
	File  string `yaml:"file" toml:"file"`   // empty logs to stderr
}

// LoadConfig loads configuration from a YAML or, by extension, TOML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	policy := agent.DefaultReconnectPolicy()
	if c.Stream.ReconnectBase <= 0 {
		c.Stream.ReconnectBase = Duration(policy.BaseDelay)
	}
	if c.Stream.MaxAttempts <= 0 {
		c.Stream.MaxAttempts = policy.MaxAttempts
	}
	hb := agent.DefaultHeartbeatConfig()
	if c.Stream.HeartbeatTimeout <= 0 {
		c.Stream.HeartbeatTimeout = Duration(hb.Timeout)
	}
	if c.Stream.HeartbeatInterval <= 0 {
		c.Stream.HeartbeatInterval = Duration(hb.CheckInterval)
	}

	st := status.DefaultConfig()
	if c.Status.Debounce <= 0 {
		c.Status.Debounce = Duration(st.Debounce)
	}
	if c.Status.MaxAttempts <= 0 {
		c.Status.MaxAttempts = st.MaxAttempts
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = storage.DriverJSONFile
	}
	if c.Storage.Path == "" && c.Storage.Driver != storage.DriverMemory && c.Storage.Driver != storage.DriverNATS {
		c.Storage.Path = defaultStoragePath(c.Storage.Driver)
	}
	if c.Storage.NATSBucket == "" {
		c.Storage.NATSBucket = "climalert"
	}

	rl := notifier.DefaultRateLimitConfig()
	if c.Notifiers.RateLimit.MaxPerWindow <= 0 {
		c.Notifiers.RateLimit.MaxPerWindow = rl.MaxPerWindow
	}
	if c.Notifiers.RateLimit.Window <= 0 {
		c.Notifiers.RateLimit.Window = Duration(rl.Window)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func defaultStoragePath(driver string) string {
	base := ".climalert"
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".climalert")
	}
	if driver == storage.DriverSQLite {
		return filepath.Join(base, "climalert.db")
	}
	return filepath.Join(base, "data")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.base_url must be an http(s) URL")
	}
	if err := c.Server.TLS.Validate(); err != nil {
		return fmt.Errorf("server.%w", err)
	}
	switch c.Storage.Driver {
	case storage.DriverMemory, storage.DriverJSONFile, storage.DriverSQLite:
	case storage.DriverNATS:
		if len(c.Storage.NATSURLs) == 0 {
			return fmt.Errorf("storage.nats_urls is required for the nats driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if c.Notifiers.Slack != nil && c.Notifiers.Slack.WebhookURL == "" {
		return fmt.Errorf("notifiers.slack.webhook_url is required")
	}
	if c.Notifiers.Teams != nil && c.Notifiers.Teams.WebhookURL == "" {
		return fmt.Errorf("notifiers.teams.webhook_url is required")
	}
	if t := c.Notifiers.Telegram; t != nil && (t.BotToken == "" || t.ChatID == "") {
		return fmt.Errorf("notifiers.telegram needs bot_token and chat_id")
	}
	for name, expr := range c.filters() {
		if _, err := alerting.NewExprMatcher(expr); err != nil {
			return fmt.Errorf("notifiers.%s.filter: %w", name, err)
		}
	}
	return nil
}

// filters returns the configured notifier filter expressions by notifier name.
func (c *Config) filters() map[string]string {
	out := make(map[string]string)
	if s := c.Notifiers.Slack; s != nil && s.Filter != "" {
		out["slack"] = s.Filter
	}
	if t := c.Notifiers.Teams; t != nil && t.Filter != "" {
		out["teams"] = t.Filter
	}
	if t := c.Notifiers.Telegram; t != nil && t.Filter != "" {
		out["telegram"] = t.Filter
	}
	return out
}

// AgentConfig converts the file configuration into the agent's.
func (c *Config) AgentConfig(verbose bool) *agent.Config {
	cfg := &agent.Config{
		ServerURL: c.Server.BaseURL,
		TLS:       c.Server.TLS,
		Token:     c.Auth.Token,
		TokenFile: c.Auth.TokenFile,
		Reconnect: agent.ReconnectPolicy{
			BaseDelay:   c.Stream.ReconnectBase.Std(),
			MaxAttempts: c.Stream.MaxAttempts,
		},
		Heartbeat: agent.HeartbeatConfig{
			Timeout:       c.Stream.HeartbeatTimeout.Std(),
			CheckInterval: c.Stream.HeartbeatInterval.Std(),
		},
		Status: status.Config{
			Debounce:    c.Status.Debounce.Std(),
			MaxAttempts: c.Status.MaxAttempts,
			RetryDelay:  c.Status.RetryDelay.Std(),
		},
		Storage: storage.Config{
			Driver:     c.Storage.Driver,
			Path:       c.Storage.Path,
			NATSURLs:   c.Storage.NATSURLs,
			NATSBucket: c.Storage.NATSBucket,
		},
		APIAddress:     c.API.Address,
		MetricsAddress: c.Metrics.Address,
		RateLimit: notifier.RateLimitConfig{
			MaxPerWindow: c.Notifiers.RateLimit.MaxPerWindow,
			Window:       c.Notifiers.RateLimit.Window.Std(),
			Enabled:      !c.Notifiers.RateLimit.Disabled,
		},
		NotifierFilters: c.filters(),
		Verbose:         verbose,
	}
	if s := c.Notifiers.Slack; s != nil {
		cfg.Slack = &notifier.SlackConfig{WebhookURL: s.WebhookURL}
	}
	if t := c.Notifiers.Teams; t != nil {
		cfg.Teams = &notifier.TeamsConfig{WebhookURL: t.WebhookURL}
	}
	if t := c.Notifiers.Telegram; t != nil {
		cfg.Telegram = &notifier.TelegramConfig{BotToken: t.BotToken, ChatID: t.ChatID, APIBase: t.APIBase}
	}
	return cfg
}
