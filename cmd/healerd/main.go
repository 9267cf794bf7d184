// Command healerd runs the CI self-healing dispatch service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stratoci/healer/pkg/cli"
	"github.com/stratoci/healer/pkg/config"
	"github.com/stratoci/healer/pkg/healing"
	"github.com/stratoci/healer/pkg/health"
	"github.com/stratoci/healer/pkg/observability/logger"
	"github.com/stratoci/healer/pkg/observability/tracing"
	"github.com/stratoci/healer/pkg/queue"
	"github.com/stratoci/healer/pkg/server"
	"github.com/stratoci/healer/pkg/version"
)

func main() {
	rootCmd := cli.NewServiceCommand(cli.ServiceCommandOptions{
		Name:              "healerd",
		Description:       "CI self-healing job dispatch service",
		EnvPrefix:         "HEALER",
		RunServer:         runServer,
		CheckDependencies: checkDependencies,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	log.Info("starting healerd", "version", version.Current(cfg.Service.Name).String(), "environment", cfg.Service.Environment)

	tracerProvider, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: version.Current(cfg.Service.Name).Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		return fmt.Errorf("create tracer provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	backend, err := newBackend(cfg, log)
	if err != nil {
		return fmt.Errorf("create queue backend: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn("queue backend close failed", "error", err)
		}
	}()

	service, err := healing.NewService(backend, log, cfg, defaultHealAction(log))
	if err != nil {
		return fmt.Errorf("create healing service: %w", err)
	}

	healthRegistry := health.NewRegistry()
	healthRegistry.Register(health.NewAdapterChecker("redis", backend, cfg.Queue.Redis.OperationTimeout))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 2)

	go func() {
		errChan <- service.Start(runCtx)
	}()

	if cfg.Management.Enabled {
		mgmtServer := server.NewManagementServer(
			cfg.Management,
			log,
			healthRegistry,
			backend,
			!cfg.Service.IsProduction(),
		)
		go func() {
			errChan <- mgmtServer.Start(runCtx)
		}()
	}

	select {
	case <-runCtx.Done():
		log.Info("shutdown requested")
	case err := <-errChan:
		if err != nil {
			log.Error("component terminated", "error", err)
			cancel()
			return err
		}
	}

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Queue.Worker.StopTimeout)
	defer stopCancel()
	if err := service.Stop(stopCtx); err != nil {
		return fmt.Errorf("drain healing service: %w", err)
	}

	log.Info("healerd stopped")
	return nil
}

func checkDependencies(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	backend, err := newBackend(cfg, log)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer backend.Close()

	if err := backend.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	log.Info("dependencies healthy")
	return nil
}

func newBackend(cfg *config.Config, log logger.Logger) (*queue.RedisBackend, error) {
	return queue.NewRedisBackend(queue.RedisBackendConfig{
		URL:                cfg.Queue.Redis.URL,
		Prefix:             cfg.Queue.Redis.Prefix,
		OperationTimeout:   cfg.Queue.Redis.OperationTimeout,
		EventStreamMaxLen:  cfg.Queue.Redis.EventStreamMaxLen,
		CompletedRetention: cfg.Queue.Redis.CompletedRetention,
	}, log)
}

// defaultHealAction stands in for the orchestrator-owned healing logic. It
// acknowledges the attempt so the dispatch pipeline is fully exercisable;
// deployments embed their own action through healing.NewService.
func defaultHealAction(log logger.Logger) healing.HealFunc {
	return func(ctx context.Context, runID string) error {
		log.Info("healing attempt consumed", "run_id", runID)
		return nil
	}
}
