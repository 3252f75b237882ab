package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/auth"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/config"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/events"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/host"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/plugin"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/server"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/settings"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/storage"

	// Plugins
	"github.com/stephanedenis/pensine-plugin-calendar/plugins/calendar"
	"github.com/stephanedenis/pensine-plugin-calendar/plugins/journal"
)

func main() {
	configPath := flag.String("config", "pensine.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log.Level)
	if err := run(cfg, logger); err != nil {
		level.Error(logger).Log("msg", "exiting", "err", err)
		os.Exit(1)
	}
}

func newLogger(lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	var allow level.Option
	switch lvl {
	case "debug":
		allow = level.AllowDebug()
	case "warn":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	default:
		allow = level.AllowInfo()
	}
	return level.NewFilter(logger, allow)
}

func run(cfg *config.Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.Dir, cfg.Storage.Git, storage.WithLogger(logger))
	if err != nil {
		return err
	}
	bus := events.NewBus(logger)
	settingsSvc := settings.New(cfg.PluginValues(), logger)
	plugins := plugin.NewManager(logger)

	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithLogger(logger),
		server.WithAuth(auth.NewAuthenticator(cfg.Auth.Method, cfg.Auth.APIKey, cfg.Auth.JWTSecret)),
		server.WithEvents(bus),
		server.WithSchemas(settingsSvc),
		server.WithPlugins(plugins),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	hc := host.Context{
		Router:  srv.Router(),
		Events:  bus,
		Storage: store,
		Config:  settingsSvc,
		Assets:  srv.Assets(),
	}

	registry := plugin.NewRegistry()
	if err := registerPlugins(registry); err != nil {
		return err
	}
	if err := initializePlugins(cfg, registry, plugins, hc, logger); err != nil {
		return err
	}

	if err := plugins.EnableAll(ctx); err != nil {
		level.Warn(logger).Log("msg", "some plugins failed to enable", "err", err)
	}
	defer func() {
		if err := plugins.DisableAll(context.Background()); err != nil {
			level.Warn(logger).Log("msg", "disable plugins", "err", err)
		}
	}()

	return srv.Start(ctx)
}

func registerPlugins(registry *plugin.Registry) error {
	factories := map[string]plugin.Factory{
		calendar.PluginID: func(hc host.Context, logger log.Logger) plugin.Plugin {
			return calendar.New(hc, calendar.WithWidget(calendar.LinearWidget), calendar.WithLogger(logger))
		},
		journal.PluginID: func(hc host.Context, logger log.Logger) plugin.Plugin {
			return journal.New(hc, journal.WithLogger(logger))
		},
	}

	for id, f := range factories {
		if err := registry.Register(id, f); err != nil {
			return err
		}
	}

	return nil
}

func initializePlugins(cfg *config.Config, registry *plugin.Registry, plugins *plugin.Manager, hc host.Context, logger log.Logger) error {
	for _, pc := range cfg.Plugins {
		if _, err := registry.Get(pc.ID); err != nil {
			return err
		}
	}

	for _, id := range registry.List() {
		if !cfg.PluginEnabled(id) {
			level.Info(logger).Log("msg", "plugin disabled by configuration", "plugin", id)
			continue
		}
		factory, err := registry.Get(id)
		if err != nil {
			return err
		}
		if err := plugins.Add(factory(hc, logger)); err != nil {
			return fmt.Errorf("failed to add plugin %s: %w", id, err)
		}
		level.Info(logger).Log("msg", "initialized plugin", "plugin", id)
	}

	return nil
}
