package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"subtrack/internal/core"
	"subtrack/internal/log"
)

type plannedReminder struct {
	Key      string        `json:"key"`
	LeadTime core.LeadTime `json:"leadTime"`
	FireAt   time.Time     `json:"fireAt"`
}

type remindersResponse struct {
	SubscriptionID string              `json:"subscriptionId"`
	Renewal        *time.Time          `json:"renewal,omitempty"`
	Due            []plannedReminder   `json:"due"`
	Skipped        []core.LeadTime     `json:"skipped"`
	Pending        []core.Notification `json:"pending"`
}

func (s *Server) handleGetReminders(w http.ResponseWriter, r *http.Request) {
	at, err := asOf(r, s.now(), s.deps.Location)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	status, err := s.deps.Subscriptions.Reminders(r.Context(), id, at)
	if err != nil {
		respondErr(w, r, log.OpSchedule, err)
		return
	}

	resp := remindersResponse{
		SubscriptionID: id,
		Due:            make([]plannedReminder, 0, len(status.Plan.Due)),
		Skipped:        status.Plan.Skipped,
		Pending:        status.Pending,
	}
	if !status.Plan.Renewal.IsZero() {
		resp.Renewal = &status.Plan.Renewal
	}
	for _, d := range status.Plan.Due {
		resp.Due = append(resp.Due, plannedReminder{Key: d.Key(), LeadTime: d.LeadTime, FireAt: d.FireAt})
	}
	if resp.Skipped == nil {
		resp.Skipped = []core.LeadTime{}
	}
	if resp.Pending == nil {
		resp.Pending = []core.Notification{}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Subscriptions.Reschedule(r.Context(), chi.URLParam(r, "id"), s.now())
	if err != nil {
		respondErr(w, r, log.OpSchedule, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleRefreshReminders(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reminders == nil {
		respondError(w, http.StatusServiceUnavailable, "reminders are not configured")
		return
	}
	report, err := s.deps.Reminders.RefreshAll(r.Context(), s.now())
	if err != nil {
		respondErr(w, r, log.OpRefresh, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type notificationSettings struct {
	Granted *bool `json:"granted"`
}

func (s *Server) handleGetNotificationSettings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reminders == nil {
		respondError(w, http.StatusServiceUnavailable, "reminders are not configured")
		return
	}
	granted, err := s.deps.Reminders.Granted(r.Context())
	if err != nil {
		respondErr(w, r, log.OpSettings, err)
		return
	}
	respondJSON(w, http.StatusOK, notificationSettings{Granted: &granted})
}

func (s *Server) handlePutNotificationSettings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reminders == nil {
		respondError(w, http.StatusServiceUnavailable, "reminders are not configured")
		return
	}
	var req notificationSettings
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Granted == nil {
		respondError(w, http.StatusBadRequest, "granted is required")
		return
	}
	if err := s.deps.Reminders.SetPermission(r.Context(), *req.Granted, s.now()); err != nil {
		respondErr(w, r, log.OpSettings, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Notification permission changed", "granted", *req.Granted)
	respondJSON(w, http.StatusOK, req)
}
