package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

const (
	// DefaultEndpoint is the chat backend the widget talks to when nothing else is configured.
	DefaultEndpoint = "http://127.0.0.1:5000/chatbot"

	// DefaultJournalFile is the diagnostics database name inside the log dir.
	DefaultJournalFile = "diagnostics.db"

	DefaultUserAvatar = "you"
	DefaultBotAvatar  = "sparky"
)

// Config holds application configuration
type Config struct {
	Endpoint    EndpointConfig    `toml:"endpoint"`
	Widget      WidgetConfig      `toml:"widget"`
	Log         LogConfig         `toml:"log"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
}

// EndpointConfig describes the outbound chat request target.
type EndpointConfig struct {
	URL string `toml:"url" env:"CHATWIDGET_ENDPOINT_URL"`
	// Zero means no timeout: a hung request keeps its placeholder visible.
	RequestTimeout Duration `toml:"request_timeout" env:"CHATWIDGET_ENDPOINT_REQUEST_TIMEOUT"`
}

type WidgetConfig struct {
	SerializeSubmissions bool   `toml:"serialize_submissions" env:"CHATWIDGET_WIDGET_SERIALIZE_SUBMISSIONS"`
	UserAvatar           string `toml:"user_avatar" env:"CHATWIDGET_WIDGET_USER_AVATAR"`
	BotAvatar            string `toml:"bot_avatar" env:"CHATWIDGET_WIDGET_BOT_AVATAR"`
	Plain                bool   `toml:"plain" env:"CHATWIDGET_WIDGET_PLAIN"`
}

type LogConfig struct {
	Dir   string `toml:"dir" env:"CHATWIDGET_LOG_DIR"`
	Debug bool   `toml:"debug" env:"CHATWIDGET_LOG_DEBUG"`
}

type DiagnosticsConfig struct {
	Enabled bool `toml:"enabled" env:"CHATWIDGET_DIAGNOSTICS_ENABLED"`
	// Empty means DefaultJournalFile in the log dir.
	DBPath string `toml:"db_path" env:"CHATWIDGET_DIAGNOSTICS_DB_PATH"`
}

// Duration wraps time.Duration so it can be written as "30s" in TOML and env.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			URL: DefaultEndpoint,
		},
		Widget: WidgetConfig{
			SerializeSubmissions: true,
			UserAvatar:           DefaultUserAvatar,
			BotAvatar:            DefaultBotAvatar,
		},
		Log: LogConfig{
			Dir: "logs",
		},
		Diagnostics: DiagnosticsConfig{
			Enabled: true,
		},
	}
}

// DefaultPath returns the config file location under the user config dir.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "chatwidget.toml"
	}
	return filepath.Join(dir, "chatwidget", "config.toml")
}

// Load builds a Config from defaults, the TOML file at path (if it exists) and
// CHATWIDGET_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// Validate checks the values that must hold before the widget starts.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Endpoint.URL)
	if err != nil {
		return fmt.Errorf("invalid endpoint url %q: %w", c.Endpoint.URL, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint url must be an absolute http(s) url, got %q", c.Endpoint.URL)
	}
	if c.Endpoint.RequestTimeout.Duration < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}
	if c.Log.Dir == "" {
		return fmt.Errorf("log dir is required")
	}
	return nil
}

// JournalPath returns the diagnostics database location. Unless db_path is
// set it lives in the log directory.
func (c *Config) JournalPath() string {
	if c.Diagnostics.DBPath != "" {
		return c.Diagnostics.DBPath
	}
	return filepath.Join(c.Log.Dir, DefaultJournalFile)
}
