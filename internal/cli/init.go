// Package cli provides the startup steps shared by cmd/bills,
// cmd/rollover-worker and cmd/action-worker.
package cli

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"bills/internal/config"
	"bills/internal/log"
	"bills/internal/services"
	"bills/internal/storage"
)

// SetupLogger installs a JSON logger at the given level as the default
// logger and returns it.
func SetupLogger(level, component string) *slog.Logger {
	lvl, err := log.ParseLevel(level)
	logger := log.New(os.Stdout, lvl, component)
	slog.SetDefault(logger)
	if err != nil {
		logger.Warn("Falling back to info logging", "error", err)
	}
	return logger
}

// LoadEnvFile loads .env files for local development. A missing file is
// not an error.
func LoadEnvFile(paths ...string) error {
	err := godotenv.Load(paths...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Bootstrap loads the environment and configuration, then installs the
// logger. It exits the process when the configuration is unusable.
func Bootstrap(component string) (*config.Config, *slog.Logger) {
	envErr := LoadEnvFile()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger := SetupLogger("info", component)
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	logger := SetupLogger(cfg.LogLevel, component)
	if envErr != nil {
		logger.Warn("Failed to read .env file", "error", envErr)
	}
	return cfg, logger
}

// Clock returns the wall clock in the configured time zone.
func Clock(cfg *config.Config) (services.Clock, error) {
	loc, err := cfg.Location()
	if err != nil {
		return services.Clock{}, err
	}
	return services.SystemClock(loc), nil
}

// InitSQLite opens the repository or exits the process on failure.
func InitSQLite(logger *slog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
