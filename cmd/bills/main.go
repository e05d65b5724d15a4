// Command bills serves the ledger API.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"bills/internal/actions"
	"bills/internal/advisor"
	"bills/internal/amqp"
	"bills/internal/cache"
	"bills/internal/cli"
	"bills/internal/config"
	apphttp "bills/internal/http"
	"bills/internal/log"
	"bills/internal/services"
)

const cacheSweepInterval = 5 * time.Minute

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentServer)
	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	clock, err := cli.Clock(cfg)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ledger := services.NewLedger(repo, clock)
	funds := services.NewFunds(repo, clock)
	dispatcher := actions.NewDispatcher(repo, ledger, funds)

	// Applied actions are announced on the queue when one is configured
	var queue apphttp.ActionQueue
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without notifications", "error", err)
		} else {
			defer client.Close()
			dispatcher.WithNotifier(client)
			queue = client
			logger.Info("AMQP notifications enabled", "exchange", cfg.AMQPExchange)
		}
	}

	adv := advisor.New(newProvider(cfg), ledger, funds, advisor.Config{
		Retry: advisor.RetryPolicy{
			MaxAttempts:    cfg.AdvisorMaxAttempts,
			Backoff:        cfg.AdvisorBackoff,
			AttemptTimeout: cfg.AdvisorTimeout,
		},
		AuthURL: cfg.AdvisorAuthURL,
	})
	logger.Info("Advisor configured", "provider", cfg.LLMProvider, "connected", adv.Connected())

	janitor := cache.NewJanitor()
	janitor.Register("advisor", adv.Cache())

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CORSOrigin:         cfg.CORSOrigin,
	}, apphttp.Deps{
		Repo:       repo,
		Ledger:     ledger,
		Funds:      funds,
		Dispatcher: dispatcher,
		Advisor:    adv,
		Queue:      queue,
	})

	ctx, stop := cli.SignalContext()
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error {
		janitor.Run(ctx, cacheSweepInterval)
		return nil
	})
	return g.Wait()
}

func newProvider(cfg *config.Config) advisor.Provider {
	if cfg.LLMProvider == config.ProviderOpenAI {
		return advisor.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	}
	return advisor.Disabled{}
}
