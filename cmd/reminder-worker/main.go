package main

import (
	"context"
	"os"
	"time"

	"subtrack/internal/cli"
	"subtrack/internal/log"
	"subtrack/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err != nil {
		cli.SetupLogger(nil, log.ComponentWorker).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting reminder-worker")

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	app, err := cli.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", log.FieldError, err)
		os.Exit(1)
	}
	defer app.Close()

	publisher, closePublisher, err := app.NewPublisher()
	if err != nil {
		logger.Error("Failed to initialize publisher", log.FieldError, err)
		os.Exit(1)
	}
	defer closePublisher()

	w, err := worker.NewReminderWorker(app.Scheduler, app.NewDispatcher(publisher), worker.Config{
		RefreshSpec:  cfg.RefreshCron,
		DispatchSpec: cfg.DispatchCron,
		Location:     cfg.Location(),
	}, logger.Slog())
	if err != nil {
		logger.Error("Failed to configure reminder jobs", log.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Reminder jobs configured",
		"refresh_cron", cfg.RefreshCron,
		"dispatch_cron", cfg.DispatchCron,
		"timezone", cfg.Timezone)

	// Reminders may have drifted while the worker was down.
	logger.Info("Running initial reminder refresh...")
	w.RunRefresh(ctx)
	w.RunDispatch(ctx)

	w.Start()
	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.Stop(shutdownCtx); err != nil {
		logger.Warn("Shutdown timeout reached", log.FieldError, err)
		return
	}
	logger.Info("Reminder-worker shutdown complete")
}
