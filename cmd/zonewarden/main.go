// zonewarden keeps a DNS zone in sync with the services actually
// running behind a reverse proxy. It discovers hostnames from the
// Traefik API or from container labels, reconciles them against the
// configured DNS provider, and retires records whose services are gone.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"gitlab.bluewillows.net/root/zonewarden/internal/bus"
	"gitlab.bluewillows.net/root/zonewarden/internal/config"
	"gitlab.bluewillows.net/root/zonewarden/internal/control"
	"gitlab.bluewillows.net/root/zonewarden/internal/docker"
	"gitlab.bluewillows.net/root/zonewarden/internal/health"
	"gitlab.bluewillows.net/root/zonewarden/internal/hostlist"
	"gitlab.bluewillows.net/root/zonewarden/internal/metrics"
	"gitlab.bluewillows.net/root/zonewarden/internal/publicip"
	"gitlab.bluewillows.net/root/zonewarden/internal/reconciler"
	"gitlab.bluewillows.net/root/zonewarden/internal/scheduler"
	"gitlab.bluewillows.net/root/zonewarden/internal/store"
	"gitlab.bluewillows.net/root/zonewarden/internal/sweeper"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
	"gitlab.bluewillows.net/root/zonewarden/pkg/source"
	"gitlab.bluewillows.net/root/zonewarden/providers/cloudflare"
	"gitlab.bluewillows.net/root/zonewarden/providers/dnsmasq"
	"gitlab.bluewillows.net/root/zonewarden/providers/rfc2136"
	"gitlab.bluewillows.net/root/zonewarden/providers/technitium"
	dockersource "gitlab.bluewillows.net/root/zonewarden/sources/docker"
	"gitlab.bluewillows.net/root/zonewarden/sources/traefik"
)

// Version and BuildDate are set via ldflags during build.
// Example: -ldflags="-X main.Version=v1.0.0 -X main.BuildDate=2026-08-24"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// Bootstrap logger so configuration loading can warn; replaced once
	// the configured level and format are known.
	logger := setupLogger("info", "json")
	slog.SetDefault(logger)

	cfg, err := config.Load(logger)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger = setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	metrics.SetBuildInfo(Version, runtime.Version())

	logger.Info("zonewarden starting",
		slog.String("version", Version),
		slog.String("build_date", BuildDate),
		slog.String("go_version", runtime.Version()),
		slog.String("config", cfg.String()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ownership store. A degraded store keeps the process running with
	// in-memory state only; the readiness endpoint reports it.
	st, err := store.Open(cfg.DataDir, store.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	events := bus.New(bus.WithLogger(logger))
	defer events.Close()

	// Build and initialize the DNS provider adapter.
	registry := provider.NewRegistry(logger)
	registry.Register("cloudflare", cloudflare.Factory)
	registry.Register("technitium", technitium.Factory)
	registry.Register("rfc2136", rfc2136.Factory)
	registry.Register("dnsmasq", dnsmasq.Factory)

	adapter, err := registry.Build(cfg.Provider, cfg.ProviderConfig(cfg.Provider))
	if err != nil {
		return fmt.Errorf("building provider %s: %w", cfg.Provider, err)
	}
	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	err = adapter.Init(initCtx)
	initCancel()
	if err != nil {
		return fmt.Errorf("initializing provider %s: %w", cfg.Provider, err)
	}
	mgr := provider.NewManager(adapter,
		provider.WithCacheTTL(cfg.CacheTTL),
		provider.WithManagerLogger(logger),
	)
	logger.Info("provider initialized",
		slog.String("provider", mgr.Name()),
		slog.String("zone", mgr.ZoneName()),
	)

	// Public IP discovery feeds A/AAAA intents.
	ips := publicip.New(cfg.IPEchoURL, cfg.IPv6EchoURL, cfg.IPRefreshInterval,
		publicip.WithLogger(logger),
	)
	ips.Refresh(ctx)

	// Hostname source per operation mode.
	src, dockerClient, err := buildSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if dockerClient != nil {
		defer dockerClient.Close()
	}

	// Safety lists: values persisted through the control surface survive
	// restarts and win over the static configuration.
	preserved := loadList(st.LoadPreserved, cfg.PreservedHostnames, "preserved", logger)
	managedRaw := loadList(st.LoadManaged, cfg.ManagedHostnames, "managed", logger)

	rec := reconciler.New(src, mgr, st, events, ips,
		reconciler.WithLogger(logger),
		reconciler.WithDefaultTTL(cfg.DefaultTTL),
		reconciler.WithDryRun(cfg.DryRun),
		reconciler.WithPreserved(hostlist.NewPreservedMatcher(preserved)),
		reconciler.WithManaged(hostlist.ParseManaged(managedRaw, logger)),
	)

	sw := sweeper.New(mgr, st, rec, events, cfg.GracePeriod,
		sweeper.WithLogger(logger),
		sweeper.WithDryRun(cfg.DryRun),
	)

	pause := scheduler.NewPauseManager(events, logger)
	if state, err := st.LoadPauseState(); err != nil {
		logger.Warn("loading persisted pause state failed", slog.String("error", err.Error()))
	} else if state.Paused {
		logger.Info("restoring persisted pause", slog.String("reason", state.Reason))
		pause.Pause(state.Reason, 0, "startup")
	}
	sched := scheduler.New(
		func(ctx context.Context) {
			if _, err := rec.Reconcile(ctx); err != nil {
				logger.Error("reconciliation failed", slog.String("error", err.Error()))
			}
		},
		func(ctx context.Context, force bool) {
			sw.Sweep(ctx, force)
		},
		pause, cfg.PollInterval, cfg.CleanupInterval,
		scheduler.WithLogger(logger),
	)

	// In direct mode container events trigger reconciliation immediately
	// instead of waiting for the next poll.
	if dockerClient != nil {
		dockerWatcher := docker.NewWatcher(dockerClient, sched.TriggerReconcile,
			docker.WithWatcherLogger(logger),
		)
		dockerWatcher.Start(ctx)
		defer dockerWatcher.Stop()
	}

	// Control surface and health endpoints share one listener.
	ctrl := control.New(pause, sched, rec, st, mgr, ips,
		control.WithLogger(logger),
		control.WithVersion(Version),
		control.WithMode(string(cfg.Mode)),
	)

	healthServer := health.NewServer(cfg.HealthPort, health.WithLogger(logger))
	healthServer.RegisterChecker("provider:"+mgr.Name(), mgr.TestConnection)
	healthServer.RegisterDegraded("store", st.Degraded)
	healthServer.RegisterDegraded("public_ip", func() bool {
		return ips.Stale(3 * cfg.IPRefreshInterval)
	})
	control.NewAPI(ctrl, logger).Register(healthServer.Mux())
	healthServer.Start()

	go ips.Run(ctx)
	go sched.Run(ctx)

	logger.Info("zonewarden initialized",
		slog.String("mode", string(cfg.Mode)),
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.Duration("grace_period", cfg.GracePeriod),
		slog.Int("health_port", cfg.HealthPort),
		slog.Bool("dry_run", cfg.DryRun),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("zonewarden shutdown complete")
	return nil
}

// buildSource wires the hostname source for the configured mode. Direct
// mode additionally returns the Docker client so the caller can watch
// its events and close it on shutdown.
func buildSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (source.Source, *docker.Client, error) {
	switch cfg.Mode {
	case config.ModeDirect:
		dockerClient, err := docker.NewClient(ctx,
			docker.WithHost(cfg.DockerHost),
			docker.WithLogger(logger),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("creating docker client: %w", err)
		}
		src := dockersource.New(dockerClient, dockersource.WithLogger(logger))
		return src, dockerClient, nil

	default:
		opts := []traefik.Option{traefik.WithLogger(logger)}
		if len(cfg.TraefikFiles) > 0 {
			opts = append(opts, traefik.WithDynamicFiles(cfg.TraefikFiles))
		}
		return traefik.New(cfg.TraefikAPIURL, opts...), nil, nil
	}
}

// loadList prefers the persisted list over the configured one.
func loadList(load func() ([]string, error), configured []string, name string, logger *slog.Logger) []string {
	stored, err := load()
	if err != nil {
		logger.Warn("loading persisted list failed, using configuration",
			slog.String("list", name),
			slog.String("error", err.Error()),
		)
		return configured
	}
	if stored == nil {
		return configured
	}
	logger.Info("restored persisted list",
		slog.String("list", name),
		slog.Int("entries", len(stored)),
	)
	return stored
}

func setupLogger(level, format string) *slog.Logger {
	logLevel := parseLogLevel(level)

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level. Trace maps
// below debug so debug-level handlers stay quiet unless asked.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return slog.LevelDebug - 4
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
