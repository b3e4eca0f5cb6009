package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"subtrack/internal/config"
	"subtrack/internal/log"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:                   "8081",
		SQLiteDBPath:           filepath.Join(t.TempDir(), "app.db"),
		BlobBackend:            "memory",
		RatesAPIURL:            "http://127.0.0.1:1/latest",
		RatesCacheTTL:          time.Hour,
		RatesFetchTimeout:      time.Second,
		RatesRequestsPerSecond: 1,
		FallbackRates:          "USD:JPY=150",
		DisplayCurrency:        "JPY",
		NotificationsEnabled:   true,
		Timezone:               "Asia/Tokyo",
		LogLevel:               "debug",
		LogFormat:              "json",
	}
}

func TestBootstrap(t *testing.T) {
	cfg := testConfig(t)
	app, err := Bootstrap(context.Background(), cfg, log.Discard())
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	defer app.Close()

	ctx := context.Background()
	if err := app.Ready(ctx); err != nil {
		t.Errorf("Ready: %v", err)
	}
	if w, err := app.Sheets(ctx); err != nil || w != nil {
		t.Errorf("Sheets without config = %v, %v; want nil, nil", w, err)
	}

	// The source is unreachable, so the configured fallback answers.
	l, err := app.Rates.GetRate(ctx, "USD", "JPY", time.Now())
	if err != nil {
		t.Fatalf("GetRate: %v", err)
	}
	if l.Rate.String() != "150" {
		t.Errorf("rate = %s, want fallback 150", l.Rate)
	}

	granted, err := app.Scheduler.Granted(ctx)
	if err != nil || !granted {
		t.Errorf("Granted = %v, %v; want default true", granted, err)
	}
}

func TestBootstrapRejectsBadBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.BlobBackend = "files"
	if _, err := Bootstrap(context.Background(), cfg, log.Discard()); err == nil {
		t.Fatal("expected error for unknown blob backend")
	}
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger(testConfig(t), log.ComponentWorker)
	if logger.Component() != log.ComponentWorker {
		t.Errorf("component = %q", logger.Component())
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level should be enabled")
	}
}
