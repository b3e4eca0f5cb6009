package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"subtrack/internal/cache"
	"subtrack/internal/core"
	"subtrack/internal/metrics"
)

// StorageKey is the blob store key holding the JSON array of cached rates.
const StorageKey = "subtrack.exchange_rate_cache"

// ErrRateUnavailable means the remote fetch failed and no fallback is configured for the pair.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Origin tells where a rate came from.
type Origin string

const (
	OriginIdentity Origin = "identity"
	OriginCache    Origin = "cache"
	OriginRemote   Origin = "remote"
	OriginFallback Origin = "fallback"
)

// Lookup is the answer to a rate query.
type Lookup struct {
	Base      string          `json:"base"`
	Target    string          `json:"target"`
	Rate      decimal.Decimal `json:"rate"`
	Origin    Origin          `json:"origin"`
	FetchedAt time.Time       `json:"fetchedAt,omitempty"`
}

// Result carries the outcome of GetRateAsync.
type Result struct {
	Lookup Lookup
	Err    error
}

type Options struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	Fallbacks    Fallbacks
	Logger       *slog.Logger
	Metrics      *metrics.Registry
}

// Cache answers rate queries from a durable blob, refreshing from the source
// when an entry is missing or older than TTL.
type Cache struct {
	store   cache.BlobStore
	source  Source
	opts    Options
	logger  *slog.Logger
	flights singleflight.Group

	// mu serializes read-modify-write of the stored blob.
	mu sync.Mutex
}

func NewCache(store cache.BlobStore, source Source, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.Fallbacks == nil {
		opts.Fallbacks = Fallbacks{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, source: source, opts: opts, logger: logger}
}

// GetRate returns the rate converting base into target as of asOf.
//
// Same currency answers 1 without I/O. A fresh stored entry is returned without
// a remote call. Otherwise the source is queried once per pair even under
// concurrent callers; on success the entry is stored with fetchedAt=asOf. If the
// fetch fails the configured fallback is returned, or ErrRateUnavailable.
//
// The fetch outlives ctx: a caller that gives up still lets the result be cached.
func (c *Cache) GetRate(ctx context.Context, base, target string, asOf time.Time) (Lookup, error) {
	base, err := core.NormalizeCurrency(base)
	if err != nil {
		return Lookup{}, err
	}
	target, err = core.NormalizeCurrency(target)
	if err != nil {
		return Lookup{}, err
	}

	if base == target {
		c.opts.Metrics.RateLookup(string(OriginIdentity))
		return Lookup{Base: base, Target: target, Rate: decimal.NewFromInt(1), Origin: OriginIdentity}, nil
	}

	if entry, ok := c.fresh(ctx, base, target, asOf); ok {
		c.opts.Metrics.RateLookup(string(OriginCache))
		return Lookup{Base: base, Target: target, Rate: entry.Rate, Origin: OriginCache, FetchedAt: entry.FetchedAt}, nil
	}

	pair := Pair{Base: base, Target: target}
	ch := c.flights.DoChan(pair.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
		defer cancel()
		return c.refresh(fetchCtx, pair, asOf)
	})

	select {
	case <-ctx.Done():
		return Lookup{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Lookup{}, res.Err
		}
		l := res.Val.(Lookup)
		c.opts.Metrics.RateLookup(string(l.Origin))
		return l, nil
	}
}

// GetRateAsync runs GetRate in the background. The returned channel receives exactly one Result.
func (c *Cache) GetRateAsync(ctx context.Context, base, target string, asOf time.Time) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		l, err := c.GetRate(ctx, base, target, asOf)
		out <- Result{Lookup: l, Err: err}
	}()
	return out
}

// Convert multiplies amount by the base→target rate.
func (c *Cache) Convert(ctx context.Context, amount decimal.Decimal, from, to string, asOf time.Time) (decimal.Decimal, Lookup, error) {
	l, err := c.GetRate(ctx, from, to, asOf)
	if err != nil {
		return decimal.Zero, Lookup{}, err
	}
	return core.Convert(amount, l.Rate), l, nil
}

// CachedRates returns every stored entry, newest first.
func (c *Cache) CachedRates(ctx context.Context) ([]core.CachedRate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].FetchedAt.After(entries[j].FetchedAt)
	})
	return entries, nil
}

// Clear removes every cached rate.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("clear rate cache: %w", err)
	}
	return nil
}

// TTL is the freshness window applied to stored entries.
func (c *Cache) TTL() time.Duration {
	return c.opts.TTL
}

func (c *Cache) fresh(ctx context.Context, base, target string, asOf time.Time) (core.CachedRate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := c.load(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to read rate cache", "error", err)
		return core.CachedRate{}, false
	}
	for _, e := range entries {
		if e.Matches(base, target) && !e.Expired(asOf, c.opts.TTL) {
			return e, true
		}
	}
	return core.CachedRate{}, false
}

func (c *Cache) refresh(ctx context.Context, pair Pair, asOf time.Time) (Lookup, error) {
	// A concurrent flight for the pair may have finished between our miss and now.
	if entry, ok := c.fresh(ctx, pair.Base, pair.Target, asOf); ok {
		return Lookup{Base: pair.Base, Target: pair.Target, Rate: entry.Rate, Origin: OriginCache, FetchedAt: entry.FetchedAt}, nil
	}

	r, err := c.fetch(ctx, pair)
	if err != nil {
		fallback, ok := c.opts.Fallbacks.Lookup(pair)
		if !ok {
			c.logger.ErrorContext(ctx, "Exchange rate unavailable", "base", pair.Base, "target", pair.Target, "error", err)
			return Lookup{}, fmt.Errorf("%w for %s: %v", ErrRateUnavailable, pair, err)
		}
		c.logger.WarnContext(ctx, "Using fallback exchange rate",
			"base", pair.Base, "target", pair.Target, "rate", fallback.String(), "error", err)
		return Lookup{Base: pair.Base, Target: pair.Target, Rate: fallback, Origin: OriginFallback}, nil
	}

	entry := core.CachedRate{BaseCurrency: pair.Base, TargetCurrency: pair.Target, Rate: r, FetchedAt: asOf}
	if err := c.put(ctx, entry, asOf); err != nil {
		c.logger.WarnContext(ctx, "Failed to store exchange rate", "base", pair.Base, "target", pair.Target, "error", err)
	}
	c.logger.InfoContext(ctx, "Fetched exchange rate", "base", pair.Base, "target", pair.Target, "rate", r.String())
	return Lookup{Base: pair.Base, Target: pair.Target, Rate: r, Origin: OriginRemote, FetchedAt: asOf}, nil
}

func (c *Cache) fetch(ctx context.Context, pair Pair) (decimal.Decimal, error) {
	q, err := c.source.Latest(ctx, pair.Base)
	if err != nil {
		return decimal.Zero, err
	}
	r, ok := q.Rates[pair.Target]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s", ErrMalformedResponse, pair.Target)
	}
	if !r.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive rate for %s", ErrMalformedResponse, pair.Target)
	}
	return r, nil
}

// put prunes expired entries, replaces the pair's entry and writes the blob back.
func (c *Cache) put(ctx context.Context, entry core.CachedRate, asOf time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "Discarding unreadable rate cache", "error", err)
		entries = nil
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Expired(asOf, c.opts.TTL) || e.Matches(entry.BaseCurrency, entry.TargetCurrency) {
			continue
		}
		kept = append(kept, e)
	}
	kept = append(kept, entry)

	data, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("encode rate cache: %w", err)
	}
	return c.store.Set(ctx, StorageKey, data)
}

func (c *Cache) load(ctx context.Context) ([]core.CachedRate, error) {
	data, ok, err := c.store.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("read rate cache: %w", err)
	}
	if !ok || len(data) == 0 {
		return nil, nil
	}
	var entries []core.CachedRate
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode rate cache: %w", err)
	}
	return entries, nil
}
