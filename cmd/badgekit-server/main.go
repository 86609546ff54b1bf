package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx := context.Background()
	app, cleanup, err := BuildApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := app.Config
	logger := app.Logger

	logger.Info("starting badgekit server",
		"environment", cfg.Environment,
		"profile", cfg.Profile,
		"address", cfg.Server.Address,
		"storage_adapter", cfg.Storage.Adapter,
		"debounce", cfg.Engine.DebounceWindow)

	if cfg.Engine.RolloverEnabled {
		app.Rollover.Start()
		logger.Info("daily rollover enabled", "hour_utc", cfg.Engine.RolloverHour)
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", cfg.Server.Address)
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	exit := 0
	select {
	case <-quit:
	case err := <-srvErr:
		logger.Error("failed to start server", "error", err)
		exit = 1
	}

	logger.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)
	app.Rollover.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err)
		exit = 1
	}

	// Run pending evaluations before storage closes.
	if n := app.Service.Flush(shutdownCtx); n > 0 {
		logger.Info("flushed pending evaluations", "individuals", n)
	}

	logger.Info("server stopped")
	if exit != 0 {
		cleanup()
		os.Exit(exit)
	}
}
