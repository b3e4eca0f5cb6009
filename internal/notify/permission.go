package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"subtrack/internal/cache"
)

// PermissionKey is where the notification authorization flag is persisted.
const PermissionKey = "subtrack.notifications_authorized"

// Permission reports whether reminders may be scheduled at all.
type Permission interface {
	Granted(ctx context.Context) (bool, error)
	Set(ctx context.Context, granted bool) error
}

// SettingsPermission stores the flag in a blob store. Until set, the default applies.
type SettingsPermission struct {
	store    cache.BlobStore
	fallback bool
}

func NewSettingsPermission(store cache.BlobStore, defaultGranted bool) *SettingsPermission {
	return &SettingsPermission{store: store, fallback: defaultGranted}
}

func (p *SettingsPermission) Granted(ctx context.Context) (bool, error) {
	data, ok, err := p.store.Get(ctx, PermissionKey)
	if err != nil {
		return false, fmt.Errorf("read notification permission: %w", err)
	}
	if !ok {
		return p.fallback, nil
	}
	var granted bool
	if err := json.Unmarshal(data, &granted); err != nil {
		return false, fmt.Errorf("decode notification permission: %w", err)
	}
	return granted, nil
}

func (p *SettingsPermission) Set(ctx context.Context, granted bool) error {
	data, _ := json.Marshal(granted)
	if err := p.store.Set(ctx, PermissionKey, data); err != nil {
		return fmt.Errorf("store notification permission: %w", err)
	}
	return nil
}
