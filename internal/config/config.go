// Package config provides configuration management for inkwatch.
//
// Configuration is loaded from four sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (INKWATCH_ prefix)
//  3. Config file (.inkwatch.yaml)
//  4. Built-in defaults
//
// The loaded [Config] is then resolved into an immutable [WatchConfig]
// that the traversal, conversion, and watch components share.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Defaults for the watch settings.
const (
	DefaultRenderer       = "inkscape"
	DefaultDebounce       = 100 * time.Millisecond
	DefaultMaxWatchErrors = 10
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "INKWATCH"

// Config represents the global configuration for inkwatch.
type Config struct {
	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat"`

	// NoColor disables colored and box-drawn output.
	NoColor bool `mapstructure:"no-color" json:"noColor"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet"`

	// Renderer is an explicit path to the Inkscape executable. When empty
	// "inkscape" is resolved through PATH.
	Renderer string `mapstructure:"renderer" json:"renderer"`

	// RendererArgs are extra renderer arguments, split like a shell would.
	RendererArgs string `mapstructure:"renderer-args" json:"rendererArgs"`

	// AuxPrefix is prepended to both derived file names. Use "." to hide them.
	AuxPrefix string `mapstructure:"aux-prefix" json:"auxPrefix"`

	// Recursive includes subdirectories in traversal and watching.
	Recursive bool `mapstructure:"recursive" json:"recursive"`

	// Regenerate converts every existing source before watching starts.
	Regenerate bool `mapstructure:"regenerate" json:"regenerate"`

	// Workers bounds the batch worker pool. Zero means GOMAXPROCS.
	Workers int `mapstructure:"workers" json:"workers"`

	// Debounce is the quiet period per source before a change is handled.
	Debounce time.Duration `mapstructure:"debounce" json:"debounce"`

	// MaxWatchErrors is how many consecutive subscription errors are
	// tolerated before watching stops. Zero means unlimited.
	MaxWatchErrors int `mapstructure:"max-watch-errors" json:"maxWatchErrors"`

	// Lock prevents two watchers on the same root.
	Lock bool `mapstructure:"lock" json:"lock"`

	// ConfigFile is the resolved path to the config file used.
	// Set by Load, never read from the config itself.
	ConfigFile string `mapstructure:"-" json:"-"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:       LogLevelInfo,
		LogFormat:      LogFormatText,
		Recursive:      true,
		Regenerate:     true,
		Debounce:       DefaultDebounce,
		MaxWatchErrors: DefaultMaxWatchErrors,
		Lock:           true,
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		// valid
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
		// valid
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	if c.Workers < 0 {
		return fmt.Errorf("invalid workers %d: must not be negative", c.Workers)
	}

	if c.Debounce < 0 {
		return fmt.Errorf("invalid debounce %s: must not be negative", c.Debounce)
	}

	if c.MaxWatchErrors < 0 {
		return fmt.Errorf("invalid max-watch-errors %d: must not be negative", c.MaxWatchErrors)
	}

	if strings.ContainsRune(c.AuxPrefix, filepath.Separator) || strings.ContainsRune(c.AuxPrefix, '/') {
		return fmt.Errorf("invalid aux-prefix %q: must not contain a path separator", c.AuxPrefix)
	}

	if _, err := c.ParsedRendererArgs(); err != nil {
		return err
	}

	return nil
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

// ParsedRendererArgs splits RendererArgs into words, honouring quotes.
func (c *Config) ParsedRendererArgs() ([]string, error) {
	if strings.TrimSpace(c.RendererArgs) == "" {
		return nil, nil
	}

	args, err := shellwords.Parse(c.RendererArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid renderer-args %q: %w", c.RendererArgs, err)
	}

	return args, nil
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("no-color", d.NoColor)
	v.SetDefault("quiet", d.Quiet)
	v.SetDefault("renderer", d.Renderer)
	v.SetDefault("renderer-args", d.RendererArgs)
	v.SetDefault("aux-prefix", d.AuxPrefix)
	v.SetDefault("recursive", d.Recursive)
	v.SetDefault("regenerate", d.Regenerate)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("debounce", d.Debounce)
	v.SetDefault("max-watch-errors", d.MaxWatchErrors)
	v.SetDefault("lock", d.Lock)
}

// configureEnv sets up environment variable support.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// configureFile sets up the config file source.
func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	// Auto-discovery mode.
	v.SetConfigName(".inkwatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "inkwatch"))
	}

	if err := v.ReadInConfig(); err != nil {
		// No config file found → perfectly fine in auto-discovery.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}

		// Found a file but it was malformed.
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags walks from cmd up to the root and binds all PersistentFlags.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	// Bind the current command's own flags.
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	// Walk up to root and bind all persistent flags at each level.
	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}
