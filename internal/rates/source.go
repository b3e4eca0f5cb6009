// Package rates fetches currency exchange rates and caches them durably.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"subtrack/internal/metrics"
)

var (
	ErrBadStatus         = errors.New("rates API returned non-2xx status")
	ErrMalformedResponse = errors.New("rates API returned malformed response")
	ErrAPIFailure        = errors.New("rates API reported failure")
)

// Quote is one response from the rates API: rates of every currency against Base.
type Quote struct {
	Base  string
	Date  string
	Rates map[string]decimal.Decimal
}

// Source provides the latest rates for a base currency.
type Source interface {
	Latest(ctx context.Context, base string) (Quote, error)
}

type latestResponse struct {
	Success *bool                      `json:"success"`
	Base    string                     `json:"base"`
	Date    string                     `json:"date"`
	Rates   map[string]decimal.Decimal `json:"rates"`
}

// HTTPSource calls a fxratesapi-compatible "latest" endpoint.
type HTTPSource struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Registry
}

type SourceOption func(*HTTPSource)

func WithHTTPClient(c *http.Client) SourceOption {
	return func(s *HTTPSource) { s.client = c }
}

// WithRateLimit caps outgoing requests; burst is at least one.
func WithRateLimit(perSecond float64, burst int) SourceOption {
	return func(s *HTTPSource) {
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithMetrics(m *metrics.Registry) SourceOption {
	return func(s *HTTPSource) { s.metrics = m }
}

func NewHTTPSource(baseURL string, opts ...SourceOption) *HTTPSource {
	s := &HTTPSource{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	st := gobreaker.Settings{Name: "rates-api"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	s.breaker = gobreaker.NewCircuitBreaker(st)
	return s
}

// Latest fetches GET {baseURL}?base={base}. An open breaker fails fast with gobreaker.ErrOpenState.
func (s *HTTPSource) Latest(ctx context.Context, base string) (Quote, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Quote{}, fmt.Errorf("rate limit wait: %w", err)
	}
	start := time.Now()
	v, err := s.breaker.Execute(func() (any, error) {
		return s.fetch(ctx, base)
	})
	s.metrics.RateFetch(time.Since(start).Seconds(), err == nil)
	if err != nil {
		return Quote{}, err
	}
	return v.(Quote), nil
}

func (s *HTTPSource) fetch(ctx context.Context, base string) (Quote, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return Quote{}, fmt.Errorf("parse rates URL: %w", err)
	}
	q := u.Query()
	q.Set("base", base)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Quote{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Quote{}, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if body.Success == nil || body.Rates == nil {
		return Quote{}, fmt.Errorf("%w: missing success or rates", ErrMalformedResponse)
	}
	if !*body.Success {
		return Quote{}, ErrAPIFailure
	}
	return Quote{Base: strings.ToUpper(body.Base), Date: body.Date, Rates: body.Rates}, nil
}

// Pair identifies a directed currency conversion.
type Pair struct {
	Base   string
	Target string
}

func (p Pair) String() string { return p.Base + ":" + p.Target }

// Fallbacks are the rates used when the remote source cannot answer.
type Fallbacks map[Pair]decimal.Decimal

// Lookup returns the fallback for p, deriving it from the inverse pair when only that is configured.
func (f Fallbacks) Lookup(p Pair) (decimal.Decimal, bool) {
	if r, ok := f[p]; ok {
		return r, true
	}
	if r, ok := f[Pair{Base: p.Target, Target: p.Base}]; ok && r.IsPositive() {
		return decimal.NewFromInt(1).DivRound(r, 8), true
	}
	return decimal.Zero, false
}

// ParseFallbacks parses "USD:JPY=150,EUR:JPY=160". An empty string yields no fallbacks.
func ParseFallbacks(s string) (Fallbacks, error) {
	out := Fallbacks{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		pairText, rateText, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("fallback %q: expected BASE:TARGET=RATE", item)
		}
		base, target, ok := strings.Cut(pairText, ":")
		if !ok {
			return nil, fmt.Errorf("fallback %q: expected BASE:TARGET=RATE", item)
		}
		base, target = strings.ToUpper(strings.TrimSpace(base)), strings.ToUpper(strings.TrimSpace(target))
		if len(base) != 3 || len(target) != 3 {
			return nil, fmt.Errorf("fallback %q: currency codes must have three letters", item)
		}
		r, err := decimal.NewFromString(strings.TrimSpace(rateText))
		if err != nil || !r.IsPositive() {
			return nil, fmt.Errorf("fallback %q: rate must be a positive number", item)
		}
		out[Pair{Base: base, Target: target}] = r
	}
	return out, nil
}
