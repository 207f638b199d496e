package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/conciliacao/internal/application"
	"github.com/JonMunkholm/conciliacao/internal/config"
	"github.com/JonMunkholm/conciliacao/internal/logging"
	"github.com/JonMunkholm/conciliacao/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"source", cfg.Source.Kind,
		"view", cfg.Source.View,
		"processor", cfg.Dashboard.Processor,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()
	app, err := application.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	opts := []web.Option{web.WithCache(app.Cache)}
	if app.Mirror != nil {
		opts = append(opts, web.WithMirror(app.Mirror))
	}
	server := web.NewServer(app.Service, cfg, opts...)

	warmCtx, stopWarmer := context.WithCancel(ctx)
	defer stopWarmer()
	if cfg.Cache.WarmInterval > 0 {
		go app.Service.StartWarmer(warmCtx, cfg.Cache.WarmInterval)
	} else {
		// Warm once so the first visitor does not pay for the load.
		go func() {
			if snap := app.Service.Snapshot(warmCtx); snap.Failed() {
				slog.Warn("initial load failed; will retry on first request", "error", snap.Err)
			}
		}()
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		stopWarmer()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if err := app.Service.WaitForExports(shutdownCtx); err != nil {
			slog.Warn("exports still running at shutdown", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		app.Close()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
