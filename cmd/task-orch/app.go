package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hochfrequenz/task-orchestrator/internal/config"
	"github.com/hochfrequenz/task-orchestrator/internal/fileimport"
	"github.com/hochfrequenz/task-orchestrator/internal/logging"
	"github.com/hochfrequenz/task-orchestrator/internal/notify"
	"github.com/hochfrequenz/task-orchestrator/internal/reconcile"
	"github.com/hochfrequenz/task-orchestrator/internal/runner"
	"github.com/hochfrequenz/task-orchestrator/internal/runstore"
)

// app bundles the collaborators every command needs
type app struct {
	cfg    *config.Config
	store  *runstore.Store
	runner *runner.Runner
	logger *slog.Logger
}

// newApp loads the configuration and opens the run store. With processLogs
// the records of every run are also written to the process logger on stderr.
func newApp(ctx context.Context, processLogs bool) (*app, error) {
	cfg, err := config.LoadWithLocalFallback(configPath)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.General.LogLevel, cfg.General.LogFormat, os.Stderr)
	slog.SetDefault(logger)

	store, err := runstore.Open(ctx, cfg.General.DatabaseDriver, cfg.General.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}

	notifier, err := buildNotifier(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	catalog := runner.NewCatalog()
	catalog.Register(reconcile.TaskName, reconcile.Factory(store))
	catalog.RegisterType(fileimport.TypeName, fileimport.Factory(cfg.ObjectStore))

	opts := runner.Options{
		Config:     cfg,
		Repository: store,
		Notifier:   notifier,
		Catalog:    catalog,
		Console:    os.Stdout,
	}
	if processLogs {
		opts.Logger = logger
	}
	r, err := runner.New(opts)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{cfg: cfg, store: store, runner: r, logger: logger}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// buildNotifier sends summaries by mail when a mail host is configured and
// mirrors them to Slack when a webhook is set
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	var notifiers []notify.Notifier
	if cfg.Mail.Host != "" {
		email, err := notify.NewEmailNotifier(cfg.Mail)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, email)
	}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}

	switch len(notifiers) {
	case 0:
		return notify.NoopNotifier{}, nil
	case 1:
		return notifiers[0], nil
	default:
		return notify.NewMultiNotifier(notifiers...), nil
	}
}
