package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"subtrack/internal/log"
	"subtrack/internal/notify"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
	ran   chan struct{}
}

func (f *fakeRefresher) RefreshAll(_ context.Context, asOf time.Time) (notify.RefreshReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, asOf)
	f.mu.Unlock()
	if f.ran != nil {
		select {
		case f.ran <- struct{}{}:
		default:
		}
	}
	return notify.RefreshReport{Subscriptions: 1, Scheduled: 2}, f.err
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []time.Time
}

func (f *fakeDispatcher) DispatchDue(_ context.Context, now time.Time) (notify.DispatchReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	return notify.DispatchReport{Delivered: 1}, nil
}

func TestNewReminderWorker_InvalidSpec(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad refresh", Config{RefreshSpec: "not a cron"}},
		{"bad dispatch", Config{RefreshSpec: "0 3 * * *", DispatchSpec: "* * *"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReminderWorker(&fakeRefresher{}, &fakeDispatcher{}, tt.cfg, log.Discard().Slog())
			if err == nil {
				t.Fatal("expected error for invalid cron spec")
			}
		})
	}
}

func TestRunRefresh_UsesWorkerLocation(t *testing.T) {
	jst := time.FixedZone("JST", 9*3600)
	ref := &fakeRefresher{}
	w, err := NewReminderWorker(ref, nil, Config{RefreshSpec: "0 3 * * *", Location: jst}, log.Discard().Slog())
	if err != nil {
		t.Fatalf("NewReminderWorker() error = %v", err)
	}
	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	w.RunRefresh(context.Background())

	if len(ref.calls) != 1 {
		t.Fatalf("RefreshAll calls = %d, want 1", len(ref.calls))
	}
	if got := ref.calls[0]; !got.Equal(fixed) || got.Location() != jst {
		t.Errorf("RefreshAll asOf = %v, want %v in JST", got, fixed)
	}
}

func TestRunRefresh_ErrorIsLogged(t *testing.T) {
	ref := &fakeRefresher{err: errors.New("list failed")}
	w, err := NewReminderWorker(ref, nil, Config{}, log.Discard().Slog())
	if err != nil {
		t.Fatalf("NewReminderWorker() error = %v", err)
	}
	w.RunRefresh(context.Background())
	if len(ref.calls) != 1 {
		t.Errorf("RefreshAll calls = %d, want 1", len(ref.calls))
	}
}

func TestRunDispatch(t *testing.T) {
	disp := &fakeDispatcher{}
	w, err := NewReminderWorker(&fakeRefresher{}, disp, Config{DispatchSpec: "* * * * *"}, log.Discard().Slog())
	if err != nil {
		t.Fatalf("NewReminderWorker() error = %v", err)
	}
	fixed := time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	w.RunDispatch(context.Background())

	if len(disp.calls) != 1 || !disp.calls[0].Equal(fixed) {
		t.Errorf("DispatchDue calls = %v, want [%v]", disp.calls, fixed)
	}
}

func TestRunDispatch_NoDispatcher(t *testing.T) {
	w, err := NewReminderWorker(&fakeRefresher{}, nil, Config{DispatchSpec: "* * * * *"}, log.Discard().Slog())
	if err != nil {
		t.Fatalf("NewReminderWorker() error = %v", err)
	}
	w.RunDispatch(context.Background())
}

func TestStartStop(t *testing.T) {
	ref := &fakeRefresher{ran: make(chan struct{}, 1)}
	w, err := NewReminderWorker(ref, nil, Config{RefreshSpec: "@every 1s"}, log.Discard().Slog())
	if err != nil {
		t.Fatalf("NewReminderWorker() error = %v", err)
	}
	w.Start()

	select {
	case <-ref.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh job did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
