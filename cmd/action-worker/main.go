// Command action-worker executes action envelopes queued on AMQP through the
// same dispatcher as the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"bills/internal/actions"
	"bills/internal/amqp"
	"bills/internal/cli"
	"bills/internal/config"
	"bills/internal/log"
	"bills/internal/services"
	"bills/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentQueue)
	if err := run(cfg, logger); err != nil {
		logger.Error("Action worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Action worker shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required by the action worker")
	}
	clock, err := cli.Clock(cfg)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("connect to AMQP: %w", err)
	}
	defer client.Close()

	ledger := services.NewLedger(repo, clock)
	funds := services.NewFunds(repo, clock)
	dispatcher := actions.NewDispatcher(repo, ledger, funds).WithNotifier(client)
	handler := worker.NewActionWorker(dispatcher)

	ctx, stop := cli.SignalContext()
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.ConsumeActionRequests(ctx, handler.HandleActionRequest)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	logger.Info("Action worker started", "queue", cfg.AMQPQueue)
	return g.Wait()
}
