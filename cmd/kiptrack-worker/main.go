package main

import (
	"context"
	"errors"
	"time"

	"kiptrack/internal/cli"
	applog "kiptrack/internal/log"
	"kiptrack/internal/store"
	"kiptrack/internal/worker"
)

// allowanceRefreshInterval is how often the external allowance tables are
// re-imported.
const allowanceRefreshInterval = 24 * time.Hour

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentWorker)

	logger.Info("Starting kiptrack-worker")

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	res := cli.InitBackend(ctx, logger, cfg)
	defer cli.CloseBackend(logger, res)

	allowanceStore, _ := res.Store.(store.AllowanceConfigWriter)
	syncWorker := worker.NewSyncWorker(worker.Config{
		Advancer:          res.Advancer,
		Ledger:            res.Ledger,
		Resolver:          res.Resolver,
		Students:          res.Store,
		Reports:           res.Reports,
		Allowances:        res.Allowances,
		AllowanceStore:    allowanceStore,
		Location:          cfg.Location(),
		ExportConcurrency: cfg.SweepConcurrency,
	})

	// On startup, apply any semester boundary missed while the worker was down
	logger.Info("Performing startup check...")
	if err := syncWorker.StartupCheck(ctx); err != nil {
		logger.Error("Failed startup check", "error", err)
		// Don't exit - continue with normal operation
	}

	if res.AMQP != nil {
		go func() {
			if err := res.AMQP.ConsumeStudentChanges(ctx, syncWorker.HandleStudentChanged); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Error("Message consumption failed", "error", err)
				}
				cancel()
			}
		}()
	} else {
		logger.Info("Skipping AMQP message consumption - no AMQP URL configured")
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		syncWorker.Run(ctx, cfg.SemesterSweepInterval, allowanceRefreshInterval)
	}()

	<-ctx.Done()
	logger.Info("Shutting down worker...")

	select {
	case <-runDone:
		logger.Info("Worker shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timeout reached")
	}
}
