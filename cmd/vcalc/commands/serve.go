package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/marmos91/vcalc/internal/logger"
	"github.com/marmos91/vcalc/pkg/config"
	"github.com/marmos91/vcalc/pkg/server"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Output:  cfg.Logging.Output,
		Console: cfg.Logging.Console,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("vcalc starting",
		"version", Version,
		"level", cfg.Logging.Level,
		logger.KeyPath, cfg.Logging.Output)

	store, err := config.CreateCredentialStore(ctx, &cfg.Credentials, log)
	if err != nil {
		log.Error("Failed to load credentials", logger.KeySource, cfg.Credentials.Source, logger.KeyError, err)
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("Error closing credential store", logger.KeyError, err)
		}
	}()
	log.Info("Credential store ready",
		logger.KeyBackend, cfg.Credentials.Backend,
		logger.KeyRecords, store.Len())

	metricsResult := config.InitializeMetrics(cfg, log)

	adapters, err := config.CreateAdapters(cfg, metricsResult.VCalcMetrics, log)
	if err != nil {
		return err
	}

	srv := server.New(store, log, server.WithStopTimeout(cfg.Adapter.ShutdownTimeout))
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return fmt.Errorf("failed to add %s adapter: %w", a.Protocol(), err)
		}
	}

	metricsDone := make(chan struct{})
	if metricsResult.Server != nil {
		go func() {
			defer close(metricsDone)
			if err := metricsResult.Server.Start(ctx); err != nil {
				log.Error("Metrics server error", logger.KeyError, err)
			}
		}()
	} else {
		close(metricsDone)
		log.Debug("Metrics collection disabled")
	}

	err = srv.Serve(ctx)
	stop()
	<-metricsDone

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("vcalc stopped")
	return nil
}
