package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brokerlink/internal/domain/refresh"
	"brokerlink/internal/interfaces/scheduler"
	"brokerlink/internal/shared/config"
	"brokerlink/internal/shared/logging"
	"brokerlink/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(sctx); err != nil {
				logger.Error("telemetry shutdown failed", "error", err)
			}
		}()
	}

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Workers serve both scheduled batches and relink jobs.
	deps.Pool.Start()
	deps.Listener.Start(ctx)
	defer deps.Listener.Stop()

	if cfg.Scheduler.Enabled {
		deps.Scheduler.Start()
		if cfg.Scheduler.RunOnStartup {
			if err := deps.Scheduler.TriggerWith(scheduler.JobFullRefresh, deps.startupRefresh()); err != nil {
				logger.Warn("startup refresh not started", "error", err)
			}
		}
	} else {
		logger.Info("scheduler is disabled")
	}
	// Warm the reference-data cache so reads do not wait for the first tick.
	if deps.InstrumentHandler != nil {
		if err := deps.Scheduler.Trigger(scheduler.JobRefData); err != nil {
			logger.Warn("initial reference data refresh not started", "error", err)
		}
	}

	handler := SetupRoutes(deps, cfg, logger)
	errCh := make(chan error, 1)
	srv, redirectSrv := StartServers(NewServerConfigFromConfig(handler, cfg), logger, errCh)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	// Scheduler first so batches stop feeding the pool before it closes.
	GracefulShutdown(srv, redirectSrv, logger, shutdownTimeout, deps.Scheduler, deps.Pool)
	return nil
}

func (d *Dependencies) startupRefresh() scheduler.RunFunc {
	return d.FullRefresh.Task(refresh.TriggerStartup)
}
