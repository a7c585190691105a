package main

import (
	"errors"
	"fmt"

	"github.com/mdsync/mdsync/internal/convert"
	"github.com/mdsync/mdsync/internal/dashboard"
	"github.com/mdsync/mdsync/internal/durable"
	"github.com/mdsync/mdsync/internal/engine"
	"github.com/mdsync/mdsync/internal/journal"
	"github.com/mdsync/mdsync/internal/logging"
	"github.com/mdsync/mdsync/internal/opener"
)

// app wires the engine and its optional observers from the loaded config.
type app struct {
	logs     *logging.Loggers
	registry *engine.Registry
	journal  *journal.Journal
	dash     *dashboard.Server
}

func newApp() (*app, error) {
	logs, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	a := &app{logs: logs}

	var observers engine.Observers
	observers = append(observers, engine.ObserverFunc(a.logEvent))

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path, logs.For("journal"))
		if err != nil {
			// history is optional; keep syncing without it
			logs.For("journal").Printf("Warning: history disabled: %v", err)
		} else {
			a.journal = j
			observers = append(observers, j)
		}
	}

	if cfg.Dashboard.Enabled {
		a.dash = dashboard.NewServer(&dashboard.Config{
			Host:   cfg.Dashboard.Host,
			Port:   cfg.Dashboard.Port,
			Logger: logs.For("dashboard"),
		})
		observers = append(observers, dashboard.NewHandler(a.dash, logs.For("dashboard")))
	}

	a.registry = engine.NewRegistry(
		cfg.EngineConfig(logs, observers),
		convert.New(),
		durable.NewWriter(cfg.WriterConfig(logs)),
		opener.New(cfg.OpenerConfig(logs)),
	)

	if a.dash != nil {
		a.dash.SetSessions(a.registry)
		if err := a.dash.Start(); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to start dashboard: %w", err)
		}
	}
	return a, nil
}

// logEvent reports the events the engine does not already log.
func (a *app) logEvent(e engine.Event) {
	switch e.Kind {
	case engine.EventWritePending:
		a.logs.For("sync").Printf("Warning: %s is locked; output saved to %s%s", e.Target, e.Target, durable.PendingSuffix)
	case engine.EventOpened:
		a.logs.For("opener").Printf("Opened %s via %s", e.Target, e.Detail)
	}
}

// Close stops every session and releases the observers.
func (a *app) Close() error {
	var errs []error
	if a.registry != nil {
		errs = append(errs, a.registry.Close())
	}
	if a.dash != nil {
		errs = append(errs, a.dash.Stop())
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	errs = append(errs, a.logs.Close())
	return errors.Join(errs...)
}
