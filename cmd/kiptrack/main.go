package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"kiptrack/internal/cli"
	apphttp "kiptrack/internal/http"
	applog "kiptrack/internal/log"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentApp)

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	res := cli.InitBackend(ctx, logger, cfg)
	defer cli.CloseBackend(logger, res)

	deps := apphttp.Deps{
		Ledger:   res.Ledger,
		Review:   res.Review,
		Advancer: res.Advancer,
		Watcher:  res.Watcher,
		Logger:   logger.WithComponent(applog.ComponentHTTP),
		Location: cfg.Location(),
	}
	if p, ok := res.Store.(pinger); ok {
		deps.Ready = p.Ping
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps)

	// Configure server timeouts and limits. WriteTimeout stays zero so watch
	// streams are not cut; the websocket handler sets its own deadlines.
	srv.ReadHeaderTimeout = 10 * time.Second
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting kiptrack server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", cfg.Timezone)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		cli.CloseBackend(logger, res)
		os.Exit(1)
	}

	<-stopped
	logger.Info("Server stopped gracefully")
}
