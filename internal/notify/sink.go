// Package notify turns renewal reminder plans into pending notifications and
// delivers the ones that come due.
package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"subtrack/internal/core"
)

// Sink accepts notifications for future delivery. Schedule upserts by Key.
type Sink interface {
	Schedule(ctx context.Context, n core.Notification) error
	Cancel(ctx context.Context, keys []string) error
}

// PendingCanceller is implemented by sinks that can drop every pending notification at once.
type PendingCanceller interface {
	CancelAllPending(ctx context.Context) (int64, error)
}

// MemorySink keeps notifications in memory. Keys listed in Reject fail to schedule.
type MemorySink struct {
	mu      sync.Mutex
	pending map[string]core.Notification
	Reject  map[string]bool
}

func NewMemorySink() *MemorySink {
	return &MemorySink{pending: map[string]core.Notification{}, Reject: map[string]bool{}}
}

func (s *MemorySink) Schedule(_ context.Context, n core.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Reject[n.Key] {
		return fmt.Errorf("sink rejected %s", n.Key)
	}
	s.pending[n.Key] = n
	return nil
}

func (s *MemorySink) Cancel(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.pending, k)
	}
	return nil
}

func (s *MemorySink) CancelAllPending(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.pending))
	s.pending = map[string]core.Notification{}
	return n, nil
}

// DueNotifications and MarkDelivered let MemorySink stand in for the dispatcher's store.
func (s *MemorySink) DueNotifications(_ context.Context, now time.Time, after core.DueCursor, limit int) ([]core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Notification
	for _, n := range s.pending {
		if n.DeliveredAt == nil && !n.FireAt.After(now) && after.Before(n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemorySink) MarkDelivered(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.pending[key]
	if !ok || n.DeliveredAt != nil {
		return fmt.Errorf("notification %s is not pending", key)
	}
	n.DeliveredAt = &at
	s.pending[key] = n
	return nil
}

// Pending returns undelivered notifications ordered by key.
func (s *MemorySink) Pending() []core.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Notification, 0, len(s.pending))
	for _, n := range s.pending {
		if n.DeliveredAt == nil {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
