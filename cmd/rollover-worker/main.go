// Command rollover-worker materialises the current month and posts the
// automatic fund contributions, on start-up and then on every interval.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"bills/internal/cli"
	"bills/internal/config"
	"bills/internal/log"
	"bills/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentRollover)
	if err := run(cfg, logger); err != nil {
		logger.Error("Rollover worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Rollover worker shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	clock, err := cli.Clock(cfg)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	processor := services.NewRolloverProcessor(services.NewLedger(repo, clock), services.NewFunds(repo, clock))
	scheduler := services.NewRolloverScheduler(processor, services.RolloverSchedulerConfig{
		Interval: cfg.RolloverInterval,
		Now:      func() time.Time { return time.Now().In(clock.Location) },
	})

	ctx, stop := cli.SignalContext()
	defer stop()

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	logger.Info("Rollover worker started",
		"interval", cfg.RolloverInterval,
		"timezone", cfg.Timezone)

	<-ctx.Done()
	logger.Info("Shutting down rollover worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return scheduler.Stop(shutdownCtx)
}
