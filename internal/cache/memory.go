package cache

import (
	"context"
	"time"
)

// MemoryStore is a process-local BlobStore on top of LRUCache.
type MemoryStore struct {
	lru *LRUCache[[]byte]
}

// NewMemoryStore creates a store holding at most maxEntries values, each living
// for ttl. Zero values for either mean unbounded.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{lru: NewLRUCache[[]byte](maxEntries, ttl)}
}

// WithClock replaces the time source used for TTL checks.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.lru.WithClock(now)
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.lru.Set(key, append([]byte(nil), value...))
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.lru.Delete(key)
	return nil
}

func (s *MemoryStore) CleanExpired() int {
	return s.lru.CleanExpired()
}
