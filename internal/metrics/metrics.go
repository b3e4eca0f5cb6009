// Package metrics exposes the Prometheus collectors shared by the server and workers.
// Every method is safe on a nil *Registry so components can run without metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	RemindersScheduled     prometheus.Counter
	RemindersSkipped       prometheus.Counter
	RemindersFailed        prometheus.Counter
	RateLookups            *prometheus.CounterVec
	RateFetchDuration      *prometheus.HistogramVec
	NotificationsDelivered *prometheus.CounterVec
	HTTPRequests           *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		RemindersScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subtrack_reminders_scheduled_total",
			Help: "Reminders handed to the notification sink",
		}),
		RemindersSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subtrack_reminders_skipped_total",
			Help: "Reminder candidates dropped because they were already in the past",
		}),
		RemindersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subtrack_reminders_failed_total",
			Help: "Reminders rejected by the notification sink",
		}),
		RateLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtrack_rate_lookups_total",
			Help: "Exchange rate lookups by the origin that answered them",
		}, []string{"origin"}),
		RateFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "subtrack_rate_fetch_duration_seconds",
			Help:    "Remote exchange rate fetch latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"result"}),
		NotificationsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtrack_notifications_dispatched_total",
			Help: "Due notifications processed by the dispatcher",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtrack_http_requests_total",
			Help: "HTTP requests by route pattern and status class",
		}, []string{"method", "route", "status"}),
	}
	r.reg.MustRegister(
		r.RemindersScheduled, r.RemindersSkipped, r.RemindersFailed,
		r.RateLookups, r.RateFetchDuration, r.NotificationsDelivered, r.HTTPRequests,
		collectors.NewGoCollector(),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) ReminderOutcome(scheduled, skipped, failed int) {
	if r == nil {
		return
	}
	r.RemindersScheduled.Add(float64(scheduled))
	r.RemindersSkipped.Add(float64(skipped))
	r.RemindersFailed.Add(float64(failed))
}

func (r *Registry) RateLookup(origin string) {
	if r == nil {
		return
	}
	r.RateLookups.WithLabelValues(origin).Inc()
}

func (r *Registry) RateFetch(seconds float64, ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.RateFetchDuration.WithLabelValues(result).Observe(seconds)
}

func (r *Registry) NotificationDispatched(ok bool) {
	if r == nil {
		return
	}
	result := "delivered"
	if !ok {
		result = "failed"
	}
	r.NotificationsDelivered.WithLabelValues(result).Inc()
}

func (r *Registry) HTTPRequest(method, route, status string) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(method, route, status).Inc()
}
