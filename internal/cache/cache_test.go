package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestLRUCacheExpiryAndEviction(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](2, time.Minute).WithClock(clock.Now)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a becomes most recent
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected least recently used entry to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %d %v", v, ok)
	}

	clock.t = clock.t.Add(2 * time.Minute)
	if n := c.CleanExpired(); n != 2 {
		t.Fatalf("expected 2 expired entries, got %d", n)
	}
	if c.Size() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Size())
	}
}

func TestLRUCacheNoTTL(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := NewLRUCache[string](0, 0).WithClock(clock.Now)
	c.Set("k", "v")
	clock.t = clock.t.Add(1000 * time.Hour)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatal("entry without ttl must not expire")
	}
}

func TestManagerCleanNow(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := NewMemoryStore(0, time.Second).WithClock(clock.Now)
	ctx := context.Background()
	_ = store.Set(ctx, "k", []byte("v"))

	m := NewManager(nil)
	m.Register(store)
	clock.t = clock.t.Add(time.Minute)
	if n := m.CleanNow(); n != 1 {
		t.Fatalf("expected 1 removed entry, got %d", n)
	}
}

func TestManagerStop(t *testing.T) {
	m := NewManager(nil)
	m.StartCleanup(time.Millisecond)
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func testBlobStore(t *testing.T, s BlobStore) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "k", []byte(`[1,2]`)); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(v) != `[1,2]` {
		t.Fatalf("unexpected get %q ok=%v err=%v", v, ok, err)
	}
	if err := s.Set(ctx, "k", []byte(`[]`)); err != nil {
		t.Fatal(err)
	}
	if v, _, _ := s.Get(ctx, "k"); string(v) != `[]` {
		t.Fatalf("expected overwrite, got %q", v)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("expected key to be deleted")
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("deleting a missing key must not fail: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testBlobStore(t, NewMemoryStore(0, 0))
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore(0, 0)
	ctx := context.Background()
	buf := []byte("abc")
	_ = s.Set(ctx, "k", buf)
	buf[0] = 'x'
	if v, _, _ := s.Get(ctx, "k"); string(v) != "abc" {
		t.Fatalf("store must not alias caller buffers, got %q", v)
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := NewRedisStore(client, "subtrack:", 0)
	testBlobStore(t, s)

	_ = s.Set(context.Background(), "prefixed", []byte("1"))
	if !mr.Exists("subtrack:prefixed") {
		t.Fatal("expected key to carry the prefix")
	}
}

func TestRedisStoreTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := NewRedisStore(client, "", time.Hour)
	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte("v"))
	mr.FastForward(2 * time.Hour)
	if _, ok, err := s.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected expiry, got ok=%v err=%v", ok, err)
	}
}
