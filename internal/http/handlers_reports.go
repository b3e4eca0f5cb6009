package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"subtrack/internal/core"
	"subtrack/internal/log"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	at, err := asOf(r, s.now(), s.deps.Location)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := s.deps.Spend.Summary(r.Context(), at)
	if err != nil {
		respondErr(w, r, log.OpSummary, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (s *Server) handleGetRate(w http.ResponseWriter, r *http.Request) {
	base, err := core.NormalizeCurrency(chi.URLParam(r, "base"))
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	target, err := core.NormalizeCurrency(chi.URLParam(r, "target"))
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	lookup, err := s.deps.Rates.GetRate(r.Context(), base, target, s.now())
	if err != nil {
		respondErr(w, r, log.OpFetch, err)
		return
	}
	respondJSON(w, http.StatusOK, lookup)
}

func (s *Server) handleListRates(w http.ResponseWriter, r *http.Request) {
	cached, err := s.deps.Rates.CachedRates(r.Context())
	if err != nil {
		respondErr(w, r, log.OpFetch, err)
		return
	}
	if cached == nil {
		cached = []core.CachedRate{}
	}
	respondJSON(w, http.StatusOK, cached)
}

func (s *Server) handleClearRates(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Rates.Clear(r.Context()); err != nil {
		respondErr(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	var buf bytes.Buffer
	if err := s.deps.Export.ExportCSV(r.Context(), &buf, now); err != nil {
		respondErr(w, r, log.OpExport, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(now, "csv")))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	var buf bytes.Buffer
	if err := s.deps.Export.ExportJSON(r.Context(), &buf, now); err != nil {
		respondErr(w, r, log.OpExport, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(now, "json")))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sheets == nil {
		respondError(w, http.StatusServiceUnavailable, "Google Sheets export is not configured")
		return
	}
	n, err := s.deps.Export.ExportRows(r.Context(), s.deps.Sheets, s.now())
	if err != nil {
		respondErr(w, r, log.OpExport, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"exported": n})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		respondError(w, http.StatusUnsupportedMediaType, "import expects application/json")
		return
	}
	res, err := s.deps.Export.ImportJSON(r.Context(), http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondErr(w, r, log.OpImport, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
