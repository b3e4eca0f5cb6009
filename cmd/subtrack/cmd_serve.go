package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apphttp "subtrack/internal/http"
	"subtrack/internal/log"
	"subtrack/internal/worker"
)

var (
	serveNoWorker       bool
	serveWriteLimit     int
	serveShutdownPeriod time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the reminder jobs",
	Long: `Run the JSON API on PORT. Unless --no-worker is given, the reminder
refresh (REFRESH_CRON) and dispatch (DISPATCH_CRON) jobs run in the same process.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "Do not run the reminder jobs in this process")
	serveCmd.Flags().IntVar(&serveWriteLimit, "write-limit", 60, "Write requests allowed per client per minute")
	serveCmd.Flags().DurationVar(&serveShutdownPeriod, "shutdown-timeout", 30*time.Second, "Grace period for in-flight requests")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := app.Config
	logger := app.Logger

	rowWriter, err := app.Sheets(ctx)
	if err != nil {
		logger.Warn("Google Sheets export disabled", log.FieldError, err)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Subscriptions:       app.Subscriptions,
		Spend:               app.Spend,
		Export:              app.Export,
		Rates:               app.Rates,
		Reminders:           app.Scheduler,
		Sheets:              rowWriter,
		Ready:               app.Ready,
		Metrics:             app.Metrics,
		Logger:              logger,
		Location:            cfg.Location(),
		WriteLimitPerMinute: serveWriteLimit,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownPeriod)
		defer cancel()
		logger.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})

	if !serveNoWorker {
		publisher, closePublisher, err := app.NewPublisher()
		if err != nil {
			return err
		}
		defer closePublisher()

		w, err := worker.NewReminderWorker(app.Scheduler, app.NewDispatcher(publisher), worker.Config{
			RefreshSpec:  cfg.RefreshCron,
			DispatchSpec: cfg.DispatchCron,
			Location:     cfg.Location(),
		}, logger.WithComponent(log.ComponentWorker).Slog())
		if err != nil {
			return err
		}

		g.Go(func() error {
			w.RunRefresh(gctx)
			w.Start()
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), serveShutdownPeriod)
			defer cancel()
			return w.Stop(stopCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
