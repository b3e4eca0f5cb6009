package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"subtrack/internal/core"
	"subtrack/internal/log"
	"subtrack/internal/notify"
	"subtrack/internal/services"
)

type subscriptionResponse struct {
	services.SubscriptionRecord
	NextRenewal *time.Time `json:"nextRenewal,omitempty"`
}

type savedResponse struct {
	Subscription subscriptionResponse `json:"subscription"`
	Reminders    notify.Report        `json:"reminders"`
}

func newSubscriptionResponse(sub core.Subscription, asOf time.Time) subscriptionResponse {
	resp := subscriptionResponse{SubscriptionRecord: services.NewRecord(sub)}
	if sub.IsActive {
		if next, err := sub.NextRenewal(asOf); err == nil {
			resp.NextRenewal = &next
		}
	}
	return resp
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	at, err := asOf(r, s.now(), s.deps.Location)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	order := core.ParseSortOption(r.URL.Query().Get("sort"))

	subs, err := s.deps.Subscriptions.List(r.Context(), parseBool(r, "active"), order, at)
	if err != nil {
		respondErr(w, r, log.OpList, err)
		return
	}
	out := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, newSubscriptionResponse(sub, at))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var rec services.SubscriptionRecord
	if err := decodeJSON(w, r, &rec); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec.ID = ""

	saved, err := s.deps.Subscriptions.Create(r.Context(), rec.Subscription())
	if err != nil {
		respondErr(w, r, log.OpCreate, err)
		return
	}
	respondJSON(w, http.StatusCreated, savedResponse{
		Subscription: newSubscriptionResponse(saved.Subscription, s.now()),
		Reminders:    saved.Reminders,
	})
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	at, err := asOf(r, s.now(), s.deps.Location)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := s.deps.Subscriptions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, log.OpGet, err)
		return
	}
	respondJSON(w, http.StatusOK, newSubscriptionResponse(sub, at))
}

func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var rec services.SubscriptionRecord
	if err := decodeJSON(w, r, &rec); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec.ID = chi.URLParam(r, "id")

	saved, err := s.deps.Subscriptions.Update(r.Context(), rec.Subscription())
	if err != nil {
		respondErr(w, r, log.OpUpdate, err)
		return
	}
	respondJSON(w, http.StatusOK, savedResponse{
		Subscription: newSubscriptionResponse(saved.Subscription, s.now()),
		Reminders:    saved.Reminders,
	})
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Subscriptions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondErr(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Active == nil {
		respondError(w, http.StatusBadRequest, "active is required")
		return
	}

	saved, err := s.deps.Subscriptions.SetActive(r.Context(), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		respondErr(w, r, log.OpUpdate, err)
		return
	}
	respondJSON(w, http.StatusOK, savedResponse{
		Subscription: newSubscriptionResponse(saved.Subscription, s.now()),
		Reminders:    saved.Reminders,
	})
}

func (s *Server) handleRenewal(w http.ResponseWriter, r *http.Request) {
	at, err := asOf(r, s.now(), s.deps.Location)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	next, err := s.deps.Subscriptions.NextRenewal(r.Context(), id, at)
	if err != nil {
		respondErr(w, r, log.OpNextRenewal, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"subscriptionId": id,
		"asOf":           at,
		"nextRenewal":    next,
	})
}
