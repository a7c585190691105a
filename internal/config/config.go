// Package config loads mdsync settings.
//
// Settings are layered: built-in defaults, then a config file (mdsync.toml or
// mdsync.yaml in the working directory, $XDG_CONFIG_HOME/mdsync or
// ~/.mdsync), then MDSYNC_* environment variables (MDSYNC_SYNC_ECHO_WINDOW
// for sync.echo_window), then command-line flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mdsync/mdsync/internal/engine"
	"github.com/mdsync/mdsync/internal/watcher"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "MDSYNC"

// FileName is the config file name without extension.
const FileName = "mdsync"

// Transports accepted by server.transport.
const (
	TransportStdio     = "stdio"
	TransportWebSocket = "websocket"
)

var (
	// ErrInvalid is returned when a loaded setting is out of range.
	ErrInvalid = errors.New("invalid configuration")
)

// Config is the full set of mdsync settings.
type Config struct {
	Sync      SyncConfig      `mapstructure:"sync"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Writer    WriterConfig    `mapstructure:"writer"`
	Opener    OpenerConfig    `mapstructure:"opener"`
	Log       LogConfig       `mapstructure:"log"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Server    ServerConfig    `mapstructure:"server"`
}

// SyncConfig holds session defaults.
type SyncConfig struct {
	EchoWindow    time.Duration `mapstructure:"echo_window"`
	ContentHash   bool          `mapstructure:"content_hash"`
	TextExt       string        `mapstructure:"text_ext"`
	RenderedExt   string        `mapstructure:"rendered_ext"`
	Bidirectional bool          `mapstructure:"bidirectional"`
	Watch         bool          `mapstructure:"watch"`
	Open          bool          `mapstructure:"open"`
	PreferWord    bool          `mapstructure:"prefer_word"`
}

// WatchConfig holds change detection settings.
type WatchConfig struct {
	Debounce  time.Duration `mapstructure:"debounce"`
	Stability time.Duration `mapstructure:"stability"`
	Scope     string        `mapstructure:"scope"`
}

// WriterConfig holds durable write settings.
type WriterConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// OpenerConfig holds document opener settings.
type OpenerConfig struct {
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// LogConfig holds logging settings. An empty File logs to stderr.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Verbose    bool   `mapstructure:"verbose"`
}

// JournalConfig holds sync history settings.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DashboardConfig holds live dashboard settings.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// ServerConfig holds tool server settings.
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	Addr      string `mapstructure:"addr"`
}

// Dir returns the per-user mdsync directory (~/.mdsync).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mdsync"
	}
	return filepath.Join(home, ".mdsync")
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("sync.echo_window", time.Second)
	v.SetDefault("sync.content_hash", false)
	v.SetDefault("sync.text_ext", ".md")
	v.SetDefault("sync.rendered_ext", ".docx")
	v.SetDefault("sync.bidirectional", true)
	v.SetDefault("sync.watch", true)
	v.SetDefault("sync.open", true)
	v.SetDefault("sync.prefer_word", true)

	v.SetDefault("watch.debounce", 500*time.Millisecond)
	v.SetDefault("watch.stability", 500*time.Millisecond)
	v.SetDefault("watch.scope", watcher.ScopeShared.String())

	v.SetDefault("writer.max_attempts", 8)
	v.SetDefault("writer.initial_delay", 200*time.Millisecond)
	v.SetDefault("writer.max_delay", 3*time.Second)

	v.SetDefault("opener.command_timeout", 10*time.Second)

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.verbose", false)

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", filepath.Join(Dir(), "journal.db"))

	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.host", "127.0.0.1")
	v.SetDefault("dashboard.port", 7420)

	v.SetDefault("server.transport", TransportStdio)
	v.SetDefault("server.addr", "127.0.0.1:7421")
}

// New returns a viper instance with defaults, search paths and environment
// overrides configured. A non-empty file replaces the search.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, FileName))
		} else if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", FileName))
		}
		v.AddConfigPath(Dir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Read loads the config file into v. A missing file in the search path is
// not an error; a missing explicit file is.
func Read(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Decode unmarshals and validates v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is New, Read and Decode in one step.
func Load(file string) (*Config, *viper.Viper, error) {
	v := New(file)
	if err := Read(v); err != nil {
		return nil, nil, err
	}
	cfg, err := Decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Validate checks settings that would otherwise fail later.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Sync.TextExt, ".") || !strings.HasPrefix(c.Sync.RenderedExt, ".") {
		return fmt.Errorf("%w: extensions must start with a dot (got %q, %q)", ErrInvalid, c.Sync.TextExt, c.Sync.RenderedExt)
	}
	if strings.EqualFold(c.Sync.TextExt, c.Sync.RenderedExt) {
		return fmt.Errorf("%w: text and rendered extensions must differ", ErrInvalid)
	}
	if c.Sync.EchoWindow <= 0 {
		return fmt.Errorf("%w: sync.echo_window must be positive", ErrInvalid)
	}
	if c.Watch.Debounce < 0 || c.Watch.Stability < 0 {
		return fmt.Errorf("%w: watch durations must not be negative", ErrInvalid)
	}
	stability := c.Watch.Stability
	if stability == 0 {
		stability = watcher.DefaultConfig().Stability
	}
	if c.Sync.EchoWindow < stability+engine.EchoMargin {
		return fmt.Errorf("%w: sync.echo_window (%v) must be at least watch.stability (%v) plus %v", ErrInvalid, c.Sync.EchoWindow, stability, engine.EchoMargin)
	}
	if _, err := watcher.ParseScope(c.Watch.Scope); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Writer.MaxAttempts < 1 {
		return fmt.Errorf("%w: writer.max_attempts must be at least 1", ErrInvalid)
	}
	switch c.Server.Transport {
	case TransportStdio, TransportWebSocket:
	default:
		return fmt.Errorf("%w: server.transport must be %s or %s, got %q", ErrInvalid, TransportStdio, TransportWebSocket, c.Server.Transport)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("%w: dashboard.port out of range", ErrInvalid)
	}
	return nil
}

// Settings returns the configuration as nested maps keyed like the config
// file, with durations rendered as strings ("500ms").
func (c *Config) Settings() map[string]interface{} {
	return map[string]interface{}{
		"sync": map[string]interface{}{
			"echo_window":   c.Sync.EchoWindow.String(),
			"content_hash":  c.Sync.ContentHash,
			"text_ext":      c.Sync.TextExt,
			"rendered_ext":  c.Sync.RenderedExt,
			"bidirectional": c.Sync.Bidirectional,
			"watch":         c.Sync.Watch,
			"open":          c.Sync.Open,
			"prefer_word":   c.Sync.PreferWord,
		},
		"watch": map[string]interface{}{
			"debounce":  c.Watch.Debounce.String(),
			"stability": c.Watch.Stability.String(),
			"scope":     c.Watch.Scope,
		},
		"writer": map[string]interface{}{
			"max_attempts":  c.Writer.MaxAttempts,
			"initial_delay": c.Writer.InitialDelay.String(),
			"max_delay":     c.Writer.MaxDelay.String(),
		},
		"opener": map[string]interface{}{
			"command_timeout": c.Opener.CommandTimeout.String(),
		},
		"log": map[string]interface{}{
			"file":         c.Log.File,
			"max_size_mb":  c.Log.MaxSizeMB,
			"max_backups":  c.Log.MaxBackups,
			"max_age_days": c.Log.MaxAgeDays,
			"compress":     c.Log.Compress,
			"verbose":      c.Log.Verbose,
		},
		"journal": map[string]interface{}{
			"enabled": c.Journal.Enabled,
			"path":    c.Journal.Path,
		},
		"dashboard": map[string]interface{}{
			"enabled": c.Dashboard.Enabled,
			"host":    c.Dashboard.Host,
			"port":    c.Dashboard.Port,
		},
		"server": map[string]interface{}{
			"transport": c.Server.Transport,
			"addr":      c.Server.Addr,
		},
	}
}

// WriteTOML writes c to path as TOML, creating parent directories.
func (c *Config) WriteTOML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	if err := toml.NewEncoder(f).Encode(c.Settings()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
