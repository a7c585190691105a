package config

import (
	"log"

	"github.com/mdsync/mdsync/internal/durable"
	"github.com/mdsync/mdsync/internal/engine"
	"github.com/mdsync/mdsync/internal/opener"
	"github.com/mdsync/mdsync/internal/watcher"
)

// Loggers supplies one prefixed logger per component.
type Loggers interface {
	For(component string) *log.Logger
}

// WatcherConfig builds the change watcher settings.
func (c *Config) WatcherConfig(logs Loggers) *watcher.Config {
	scope, _ := watcher.ParseScope(c.Watch.Scope)
	return &watcher.Config{
		Debounce:  c.Watch.Debounce,
		Stability: c.Watch.Stability,
		Scope:     scope,
		Logger:    logs.For("watcher"),
	}
}

// WriterConfig builds the durable writer settings.
func (c *Config) WriterConfig(logs Loggers) *durable.Config {
	cfg := durable.DefaultConfig()
	cfg.MaxAttempts = c.Writer.MaxAttempts
	cfg.InitialDelay = c.Writer.InitialDelay
	cfg.MaxDelay = c.Writer.MaxDelay
	cfg.Logger = logs.For("durable")
	return cfg
}

// OpenerConfig builds the document opener settings.
func (c *Config) OpenerConfig(logs Loggers) *opener.Config {
	cfg := opener.DefaultConfig()
	cfg.CommandTimeout = c.Opener.CommandTimeout
	cfg.Logger = logs.For("opener")
	return cfg
}

// EngineConfig builds the registry settings. observer may be nil.
func (c *Config) EngineConfig(logs Loggers, observer engine.Observer) *engine.Config {
	return &engine.Config{
		EchoWindow:  c.Sync.EchoWindow,
		ContentHash: c.Sync.ContentHash,
		TextExt:     c.Sync.TextExt,
		RenderedExt: c.Sync.RenderedExt,
		Watcher:     c.WatcherConfig(logs),
		Observer:    observer,
		Verbose:     c.Log.Verbose,
		Logger:      logs.For("sync"),
	}
}

// SessionOptions returns session options for path with the configured
// defaults. path is placed on the side its extension names.
func (c *Config) SessionOptions(path string) (engine.Options, error) {
	side, err := engine.ClassifyPath(path, c.Sync.TextExt, c.Sync.RenderedExt)
	if err != nil {
		return engine.Options{}, err
	}

	opts := engine.Options{
		Bidirectional:    c.Sync.Bidirectional,
		Watch:            c.Sync.Watch,
		OpenRendered:     c.Sync.Open,
		PreferPrimaryApp: c.Sync.PreferWord,
	}
	if side == engine.SideText {
		opts.TextPath = path
	} else {
		opts.RenderedPath = path
	}
	return opts, nil
}
