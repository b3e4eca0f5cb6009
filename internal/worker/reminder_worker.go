// Package worker runs the periodic reminder jobs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"subtrack/internal/notify"
)

// Refresher reschedules reminders for all active subscriptions.
type Refresher interface {
	RefreshAll(ctx context.Context, asOf time.Time) (notify.RefreshReport, error)
}

// Dispatcher hands due notifications to their publisher.
type Dispatcher interface {
	DispatchDue(ctx context.Context, now time.Time) (notify.DispatchReport, error)
}

type Config struct {
	RefreshSpec  string
	DispatchSpec string
	Location     *time.Location
	// JobTimeout bounds a single job run. Zero means one minute.
	JobTimeout time.Duration
}

// ReminderWorker runs a refresh job and a dispatch job on cron schedules.
type ReminderWorker struct {
	cron       *cron.Cron
	refresher  Refresher
	dispatcher Dispatcher
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

func NewReminderWorker(refresher Refresher, dispatcher Dispatcher, cfg Config, logger *slog.Logger) (*ReminderWorker, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &ReminderWorker{
		cron:       cron.New(cron.WithLocation(cfg.Location)),
		refresher:  refresher,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}

	if cfg.RefreshSpec != "" {
		if _, err := w.cron.AddFunc(cfg.RefreshSpec, func() { w.RunRefresh(context.Background()) }); err != nil {
			return nil, fmt.Errorf("add refresh job %q: %w", cfg.RefreshSpec, err)
		}
	}
	if cfg.DispatchSpec != "" && dispatcher != nil {
		if _, err := w.cron.AddFunc(cfg.DispatchSpec, func() { w.RunDispatch(context.Background()) }); err != nil {
			return nil, fmt.Errorf("add dispatch job %q: %w", cfg.DispatchSpec, err)
		}
	}
	return w, nil
}

func (w *ReminderWorker) Start() {
	w.logger.Info("Starting reminder worker",
		"refresh_cron", w.cfg.RefreshSpec,
		"dispatch_cron", w.cfg.DispatchSpec,
		"timezone", w.cfg.Location.String())
	w.cron.Start()
}

// Stop prevents new runs and waits for running jobs, or until ctx is done.
func (w *ReminderWorker) Stop(ctx context.Context) error {
	w.logger.Info("Stopping reminder worker")
	done := w.cron.Stop()
	select {
	case <-done.Done():
		w.logger.Info("Reminder worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunRefresh reschedules every active subscription once.
func (w *ReminderWorker) RunRefresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	start := w.now()
	report, err := w.refresher.RefreshAll(ctx, start.In(w.cfg.Location))
	if err != nil {
		w.logger.ErrorContext(ctx, "Reminder refresh failed", "error", err)
		return
	}
	w.logger.InfoContext(ctx, "Reminder refresh completed",
		"subscriptions", report.Subscriptions,
		"scheduled", report.Scheduled,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"errors", report.Errors,
		"duration", time.Since(start))
}

// RunDispatch publishes the notifications that are due now.
func (w *ReminderWorker) RunDispatch(ctx context.Context) {
	if w.dispatcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	report, err := w.dispatcher.DispatchDue(ctx, w.now())
	if err != nil {
		w.logger.ErrorContext(ctx, "Reminder dispatch failed", "error", err)
		return
	}
	if report.Delivered > 0 || report.Failed > 0 {
		w.logger.InfoContext(ctx, "Reminder dispatch completed",
			"delivered", report.Delivered,
			"failed", report.Failed)
	}
}
