package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"subtrack/internal/log"
	"subtrack/internal/metrics"
	"subtrack/internal/notify"
	"subtrack/internal/rates"
	"subtrack/internal/services"
)

// Deps wires the server to the application services.
type Deps struct {
	Subscriptions *services.SubscriptionService
	Spend         *services.SpendService
	Export        *services.ExportService
	Rates         *rates.Cache
	Reminders     *notify.Scheduler
	// Sheets is nil when spreadsheet export is not configured.
	Sheets services.RowWriter
	// Ready reports whether backing stores are reachable.
	Ready   func(ctx context.Context) error
	Metrics *metrics.Registry
	Logger  *log.Logger

	Location            *time.Location
	Now                 func() time.Time
	WriteLimitPerMinute int
}

type Server struct {
	http.Server
	deps        Deps
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// NewServer configures routes and returns a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		deps:        deps,
		rateLimiter: newRateLimiter(deps.WriteLimitPerMinute),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(log.Middleware(s.deps.Logger, requestID, extractClientIP))
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	r.Use(securityHeaders)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimiter.limitWrites)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", s.handleListSubscriptions)
			r.Post("/", s.handleCreateSubscription)
			r.Get("/{id}", s.handleGetSubscription)
			r.Put("/{id}", s.handleUpdateSubscription)
			r.Delete("/{id}", s.handleDeleteSubscription)
			r.Post("/{id}/active", s.handleSetActive)
			r.Get("/{id}/renewal", s.handleRenewal)
			r.Get("/{id}/reminders", s.handleGetReminders)
			r.Post("/{id}/reminders", s.handleReschedule)
		})

		r.Post("/reminders/refresh", s.handleRefreshReminders)
		r.Get("/settings/notifications", s.handleGetNotificationSettings)
		r.Put("/settings/notifications", s.handlePutNotificationSettings)

		r.Get("/summary", s.handleSummary)

		r.Get("/rates", s.handleListRates)
		r.Delete("/rates", s.handleClearRates)
		r.Get("/rates/{base}/{target}", s.handleGetRate)

		r.Get("/export.csv", s.handleExportCSV)
		r.Get("/export.json", s.handleExportJSON)
		r.Post("/export/sheets", s.handleExportSheets)
		r.Post("/import", s.handleImport)
	})

	return r
}

// instrument records request counts by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.deps.Metrics.HTTPRequest(r.Method, route, strconv.Itoa(status))
	})
}

// Shutdown stops the rate limiter cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) now() time.Time {
	return s.deps.Now().In(s.deps.Location)
}
