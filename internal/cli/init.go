// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/kiptrack and cmd/kiptrack-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kiptrack/internal/backend"
	"kiptrack/internal/config"
	applog "kiptrack/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// sets it as the default logger.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: component,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration, sets up logging and validates.
// It exits the process on validation failure.
func LoadAndValidateConfig(component string) (*config.Config, *applog.Logger) {
	cfg := config.Load()
	logger := SetupLogger(cfg, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

// InitBackend creates the store, adapters and services for cfg and imports
// the external allowance tables. It exits the process if the backend cannot
// be created; a failed import is logged and the stored tables are used.
func InitBackend(ctx context.Context, logger *applog.Logger, cfg *config.Config) *backend.BackendResult {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger)
	res, err := factory.CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	if n, err := res.ImportAllowances(ctx); err != nil {
		logger.Error("Failed to import allowance tables", "error", err)
	} else if n > 0 {
		logger.Info("Imported allowance tables", "entries", n)
	}
	return res
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM.
func ShutdownContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// CloseBackend runs the backend cleanup, logging any failure.
func CloseBackend(logger *applog.Logger, res *backend.BackendResult) {
	if res == nil || res.Cleanup == nil {
		return
	}
	if err := res.Cleanup(); err != nil {
		logger.Error("Backend cleanup failed", "error", err)
	}
}
