// Command service serves the request context API.
package main

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jsamuelsen/reqctx-service/internal/adapters/clients"
	"github.com/jsamuelsen/reqctx-service/internal/adapters/http"
	"github.com/jsamuelsen/reqctx-service/internal/adapters/http/handlers"
	"github.com/jsamuelsen/reqctx-service/internal/app"
	"github.com/jsamuelsen/reqctx-service/internal/app/reqctx"
	"github.com/jsamuelsen/reqctx-service/internal/platform/config"
	"github.com/jsamuelsen/reqctx-service/internal/platform/logging"
	"github.com/jsamuelsen/reqctx-service/internal/platform/telemetry"
	"github.com/jsamuelsen/reqctx-service/internal/ports"
)

// Set with -ldflags "-X main.Version=... -X main.Commit=... -X main.BuildTime=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cmp.Or(os.Getenv("APP_ENVIRONMENT"), "local"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg)

	tel, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		Endpoint:     cfg.Telemetry.Endpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      cfg.App.Version,
		Environment:  cfg.App.Environment,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	defer func() {
		// ctx may already be canceled by the signal.
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	agent := telemetry.NewAgent(tel.TracerProvider())

	observer, err := telemetry.NewReqctxMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("registering reqctx metrics: %w", err)
	}

	provider := reqctx.NewProvider(agent, &reqctx.Config{
		StrictLifecycle: cfg.Reqctx.StrictLifecycle,
		RootRoutine:     cfg.Reqctx.RootRoutine,
		KeepHookStack:   cfg.Reqctx.LogHookStack,
		Logger:          logger,
		Observer:        observer,
	})

	logger = logging.Enrich(logger, provider)
	logging.SetDefault(logger)

	logger.Info("starting service",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("environment", cfg.App.Environment),
		slog.Bool("strict_lifecycle", cfg.Reqctx.StrictLifecycle),
	)

	registry, err := newHealthRegistry(cfg, provider, tel, logger)
	if err != nil {
		return err
	}

	routines := app.NewRoutineService(provider, &app.RoutineServiceConfig{
		Logger:      logger,
		MaxRoutines: cfg.API.MaxRoutines,
	})

	server := http.New(&cfg.Server, logger)

	routerCfg := http.NewDefaultRouterConfig(agent, provider,
		handlers.NewHealthHandler(registry, handlers.NewBuildInfo(Version, Commit, BuildTime), nil))
	routerCfg.ContextHandler = handlers.NewContextHandler(provider)
	routerCfg.RoutinesHandler = handlers.NewRoutinesHandler(routines, provider)
	routerCfg.Timeout = cfg.API.RequestTimeout

	http.SetupRouter(server.Engine(), routerCfg)

	select {
	case err := <-server.Start():
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", slog.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	// In-flight transactions end here and flush their end hooks.
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("shutdown complete")

	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
		File: logging.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	})
}

// newHealthRegistry registers the reqctx round trip and, when configured, the
// downstream service. The downstream probe carries the probe's correlation ID.
func newHealthRegistry(
	cfg *config.Config,
	provider *reqctx.Provider,
	tel *telemetry.Provider,
	logger *slog.Logger,
) (*ports.DefaultHealthRegistry, error) {
	registry := ports.NewHealthRegistry()

	if err := registry.Register(ports.NewChecker("reqctx", provider.HealthCheck)); err != nil {
		return nil, fmt.Errorf("registering reqctx health check: %w", err)
	}

	if !cfg.Downstream.Enabled() {
		return registry, nil
	}

	downstream, err := clients.New(&clients.Config{
		BaseURL:        cfg.Downstream.BaseURL,
		ServiceName:    cfg.Downstream.Name,
		Timeout:        cfg.Downstream.Timeout,
		Retry:          cfg.Downstream.Retry,
		Circuit:        cfg.Downstream.CircuitBreaker,
		Scope:          provider,
		TracerProvider: tel.TracerProvider(),
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating downstream client: %w", err)
	}

	if err := registry.Register(downstream); err != nil {
		return nil, fmt.Errorf("registering downstream health check: %w", err)
	}

	return registry, nil
}
