// Package cli wires the application graph shared by the cmd/ binaries.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"subtrack/internal/backend"
	"subtrack/internal/config"
	"subtrack/internal/log"
	"subtrack/internal/metrics"
	"subtrack/internal/notify"
	"subtrack/internal/rates"
	"subtrack/internal/services"
	"subtrack/internal/sheets"
	"subtrack/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL/LOG_FORMAT and makes it
// the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	lc := log.DefaultConfig()
	lc.Component = component
	if cfg != nil {
		lc.Level = log.ParseLevel(cfg.LogLevel)
		lc.Format = cfg.LogFormat
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadConfig loads and validates configuration from the environment.
func LoadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// App holds the services every binary builds the same way.
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	Metrics *metrics.Registry

	Repo      *storage.SQLiteRepository
	Blobs     *backend.Result
	Rates     *rates.Cache
	Scheduler *notify.Scheduler

	Subscriptions *services.SubscriptionService
	Spend         *services.SpendService
	Export        *services.ExportService

	closeOnce sync.Once
	closeErr  error
}

// Bootstrap opens storage and the blob store and builds the services.
// The caller owns the returned App and must Close it.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize SQLite repository at %s: %w", cfg.SQLiteDBPath, err)
	}
	app.Repo = repo

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	blobs, err := backend.NewFactory(repo, logger.WithComponent(log.ComponentCache).Slog()).Open(ctx, bcfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Blobs = blobs

	fallbacks, err := rates.ParseFallbacks(cfg.FallbackRates)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("parse fallback rates: %w", err)
	}
	source := rates.NewHTTPSource(cfg.RatesAPIURL,
		rates.WithRateLimit(cfg.RatesRequestsPerSecond, 1),
		rates.WithMetrics(app.Metrics))
	app.Rates = rates.NewCache(blobs.Store, source, rates.Options{
		TTL:          cfg.RatesCacheTTL,
		FetchTimeout: cfg.RatesFetchTimeout,
		Fallbacks:    fallbacks,
		Logger:       logger.WithComponent(log.ComponentRates).Slog(),
		Metrics:      app.Metrics,
	})

	loc := cfg.Location()
	app.Scheduler = notify.NewScheduler(repo,
		notify.NewSettingsPermission(blobs.Store, cfg.NotificationsEnabled),
		repo,
		notify.WithLocation(loc),
		notify.WithLogger(logger.WithComponent(log.ComponentScheduler).Slog()),
		notify.WithMetrics(app.Metrics))

	app.Subscriptions = services.NewSubscriptionService(repo, app.Scheduler, repo, cfg.DisplayCurrency).
		WithLocation(loc)
	app.Spend = services.NewSpendService(repo, app.Rates, cfg.DisplayCurrency, 0).WithLocation(loc)
	app.Export = services.NewExportService(repo, app.Subscriptions, app.Rates, cfg.DisplayCurrency, loc)

	logger.Info("Application initialized",
		"db_path", cfg.SQLiteDBPath,
		"blob_backend", cfg.BlobBackend,
		"display_currency", cfg.DisplayCurrency,
		"timezone", loc.String())
	return app, nil
}

// Ready checks the database and, when remote, the blob store.
func (a *App) Ready(ctx context.Context) error {
	if err := a.Repo.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.Blobs != nil && a.Blobs.Ping != nil {
		if err := a.Blobs.Ping(ctx); err != nil {
			return fmt.Errorf("blob store: %w", err)
		}
	}
	return nil
}

// Sheets returns the spreadsheet export target, or nil when none is configured.
func (a *App) Sheets(ctx context.Context) (services.RowWriter, error) {
	if !a.Config.SheetsEnabled() {
		return nil, nil
	}
	exp, err := sheets.NewExporter(ctx, sheets.Config{
		SpreadsheetID:   a.Config.GoogleSpreadsheetID,
		SheetName:       a.Config.GoogleSheetName,
		CredentialsJSON: a.Config.GoogleServiceAccountJSON,
		CredentialsFile: a.Config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	return exp, nil
}

// Close releases the blob store and the database. Safe to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.Blobs != nil {
			errs = append(errs, a.Blobs.Close())
		}
		if a.Repo != nil {
			errs = append(errs, a.Repo.Close())
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
