// Package config loads bgproces settings from a YAML file, the
// environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/bgproces/internal/engine"
	"github.com/roach88/bgproces/internal/spec"
	"github.com/roach88/bgproces/internal/store"
)

// EnvPrefix prefixes environment overrides: BGPROCES_STORE_PATH sets
// store.path.
const EnvPrefix = "BGPROCES"

// DefaultConfigPath is the project-local config file.
const DefaultConfigPath = ".bgproces/config.yaml"

// Config holds all bgproces settings.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
	Watch   WatchConfig   `mapstructure:"watch"`
}

// StoreConfig configures the export journal.
type StoreConfig struct {
	Path        string        `mapstructure:"path"`         // SQLite file; empty disables journaling
	BusyTimeout time.Duration `mapstructure:"busy_timeout"` // lock wait of a writer
}

// SessionConfig configures editing sessions and loading.
type SessionConfig struct {
	DefaultStartdatum string `mapstructure:"default_startdatum"` // YYYY-MM-DD, day 0 without Startdatum
	MaxDepth          int    `mapstructure:"max_depth"`          // notification depth cap
	SinglePass        bool   `mapstructure:"single_pass"`        // one broadcast per change instead of two
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info (default), warn, error
	Format string `mapstructure:"format"` // text (default) or json
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Store: StoreConfig{
			BusyTimeout: store.DefaultBusyTimeout,
		},
		Session: SessionConfig{
			MaxDepth: engine.DefaultMaxDepth,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
	}
}

// LoadOption configures Load.
type LoadOption func(*viper.Viper) error

// WithFlag binds a command-line flag to a config key. The flag wins over
// the file and the environment when it was set.
func WithFlag(key string, flag *pflag.Flag) LoadOption {
	return func(v *viper.Viper) error {
		if flag == nil {
			return nil
		}
		return v.BindPFlag(key, flag)
	}
}

// Load reads the configuration.
//
// Lookup order for the file: path when non-empty (it must exist), then
// .bgproces/config.yaml, then ~/.config/bgproces/config.yaml. A missing
// default file is not an error. Environment variables (BGPROCES_*) and
// bound flags override file values. The result is validated.
func Load(path string, opts ...LoadOption) (Config, string, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return Config{}, "", fmt.Errorf("bind flag: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else if _, err := os.Stat(DefaultConfigPath); err == nil {
		v.SetConfigFile(DefaultConfigPath)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "bgproces"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, "", fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

// setDefaults registers every key, which also makes AutomaticEnv see
// them during Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.busy_timeout", d.Store.BusyTimeout)
	v.SetDefault("session.default_startdatum", d.Session.DefaultStartdatum)
	v.SetDefault("session.max_depth", d.Session.MaxDepth)
	v.SetDefault("session.single_pass", d.Session.SinglePass)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.Session.DefaultStartdatum != "" {
		if _, err := time.Parse(spec.DateLayout, c.Session.DefaultStartdatum); err != nil {
			return fmt.Errorf("session.default_startdatum must be YYYY-MM-DD, got %q", c.Session.DefaultStartdatum)
		}
	}
	if c.Store.BusyTimeout <= 0 {
		return fmt.Errorf("store.busy_timeout must be positive, got %s", c.Store.BusyTimeout)
	}
	if c.Session.MaxDepth < 1 {
		return fmt.Errorf("session.max_depth must be at least 1, got %d", c.Session.MaxDepth)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce)
	}
	return nil
}

// Options returns the journal options the store settings imply.
func (c StoreConfig) Options() []store.Option {
	return []store.Option{store.WithBusyTimeout(c.BusyTimeout)}
}

// Startdatum returns the default day 0, or the zero time when unset.
func (c SessionConfig) Startdatum() time.Time {
	t, _ := time.Parse(spec.DateLayout, c.DefaultStartdatum)
	return t
}

// LoadOptions returns the loader options the session settings imply.
func (c SessionConfig) LoadOptions() []spec.LoadOption {
	if c.DefaultStartdatum == "" {
		return nil
	}
	return []spec.LoadOption{spec.WithDefaultStartdatum(c.Startdatum())}
}

// BusOptions returns the bus options the session settings imply.
func (c SessionConfig) BusOptions() []engine.BusOption {
	opts := []engine.BusOption{engine.WithMaxDepth(c.MaxDepth)}
	if c.SinglePass {
		opts = append(opts, engine.WithSinglePass())
	}
	return opts
}

// SlogLevel returns the configured level.
func (c LogConfig) SlogLevel() slog.Level {
	level, _ := parseLevel(c.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
}
