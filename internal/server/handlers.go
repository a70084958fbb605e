package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cascade-rentals/opsdash/internal/model"
	"github.com/cascade-rentals/opsdash/internal/reconcile"
	"github.com/cascade-rentals/opsdash/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /api/v1/reconciliation/{domain}?start=...&end=...&location=...&category=...
func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	domain, err := model.ParseDomain(chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown domain")
		return
	}

	scope, ok := parseScope(w, r)
	if !ok {
		return
	}

	if domain == model.DomainComprehensive {
		report, err := s.engine.Comprehensive(r.Context(), scope)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	report, err := s.engine.Reconcile(r.Context(), domain, scope)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GET /api/v1/health-score?start=...&end=...&location=...
func (s *Server) handleHealthScore(w http.ResponseWriter, r *http.Request) {
	scope, ok := parseScope(w, r)
	if !ok {
		return
	}

	composite, err := s.engine.Comprehensive(r.Context(), scope)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	var reports []*model.ReconciliationReport
	for _, domain := range []model.Domain{model.DomainRevenue, model.DomainUtilization, model.DomainInventory} {
		if section, ok := composite.Domains[domain]; ok && section.Report != nil {
			reports = append(reports, section.Report)
		}
	}

	writeJSON(w, http.StatusOK, struct {
		model.HealthAssessment
		Period      model.Scope `json:"period"`
		GeneratedAt time.Time   `json:"generated_at"`
	}{
		HealthAssessment: reconcile.Assess(reports),
		Period:           scope,
		GeneratedAt:      composite.GeneratedAt,
	})
}

type suggestionRequest struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Author string `json:"author"`
	Status string `json:"status"`
}

func (s *Server) handleCreateSuggestion(w http.ResponseWriter, r *http.Request) {
	var req suggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	created, err := s.store.CreateSuggestion(r.Context(), model.Suggestion{
		Title:  req.Title,
		Body:   req.Body,
		Author: req.Author,
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	filter := store.SuggestionFilter{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := model.ParseSuggestionStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		filter.Status = status
	}

	list, err := s.store.ListSuggestions(r.Context(), filter)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Suggestion{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSuggestion(w http.ResponseWriter, r *http.Request) {
	sg, err := s.store.GetSuggestion(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "suggestion not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sg)
}

func (s *Server) handleUpdateSuggestion(w http.ResponseWriter, r *http.Request) {
	var req suggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, err := model.ParseSuggestionStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	updated, err := s.store.UpdateSuggestion(r.Context(), chi.URLParam(r, "id"), status, req.Body)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "suggestion not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteSuggestion(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteSuggestion(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "suggestion not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseScope reads the scope query parameters, writing a 400 and
// returning ok=false when they are missing or malformed.
func parseScope(w http.ResponseWriter, r *http.Request) (model.Scope, bool) {
	q := r.URL.Query()

	start, err := parseTimeParam(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start parameter")
		return model.Scope{}, false
	}
	end, err := parseTimeParam(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end parameter")
		return model.Scope{}, false
	}

	scope := model.Scope{
		Start:        start,
		End:          end,
		LocationCode: q.Get("location"),
		Category:     q.Get("category"),
	}
	if err := scope.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid scope: start and end are required and end must not precede start")
		return model.Scope{}, false
	}
	return scope, true
}

func parseTimeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
