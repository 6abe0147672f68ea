package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Server exposes the orchestrator store over HTTP. Every handler answers
// with a well-formed state payload, even on the degraded paths; failures
// never escape as empty bodies or panics.
type Server struct {
	store  *Store
	logger *slog.Logger
}

// NewServer wires the search gateway surface.
func NewServer(store *Store, logger *slog.Logger) *Server {
	return &Server{store: store, logger: logger}
}

// Router configures all gateway routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/search", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/filters", s.handleFilters)
		r.Post("/load-more", s.handleLoadMore)
		r.Post("/page", s.handlePage)
		r.Post("/page-size", s.handlePageSize)
		r.Post("/total-count", s.handleTotalCount)
	})

	return r
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.GetState())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := s.store.LoadInitialData(ctx, force); err != nil {
		// The store already degraded to a safe state; report it alongside.
		s.logger.Warn("refresh failed", "force", force, "error", err)
	}
	writeJSON(w, http.StatusOK, s.store.GetState())
}

// filterPatch is a partial update; only fields present in the payload are
// applied before the filters run.
type filterPatch struct {
	Category    *string  `json:"category,omitempty"`
	SearchQuery *string  `json:"search_query,omitempty"`
	Sort        *string  `json:"sort,omitempty"`
	PriceMin    *float64 `json:"price_min,omitempty"`
	PriceMax    *float64 `json:"price_max,omitempty"`
	MinRating   *float64 `json:"min_rating,omitempty"`
	ToggleTags  []string `json:"toggle_tags,omitempty"`
	ToggleFeats []string `json:"toggle_features,omitempty"`
	Reset       bool     `json:"reset,omitempty"`
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	var patch filterPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if patch.Reset {
		s.store.ResetFilters()
	}
	if patch.Category != nil {
		s.store.SetCategory(*patch.Category)
	}
	if patch.SearchQuery != nil {
		s.store.SetSearchQuery(*patch.SearchQuery)
	}
	if patch.Sort != nil {
		s.store.SetSort(Sort(*patch.Sort))
	}
	if patch.PriceMin != nil || patch.PriceMax != nil {
		current := s.store.GetState().Filters.PriceRange
		min, max := current.Min, current.Max
		if patch.PriceMin != nil {
			min = *patch.PriceMin
		}
		if patch.PriceMax != nil {
			max = *patch.PriceMax
		}
		s.store.SetPriceRange(min, max)
	}
	if patch.MinRating != nil {
		s.store.SetMinRating(*patch.MinRating)
	}
	for _, tag := range patch.ToggleTags {
		s.store.ToggleTag(tag)
	}
	for _, feature := range patch.ToggleFeats {
		s.store.ToggleFeature(feature)
	}

	if err := s.store.ApplyFilters(r.Context(), true); err != nil {
		s.logger.Warn("apply filters failed", "error", err)
	}
	writeJSON(w, http.StatusOK, s.store.GetState())
}

func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	if err := s.store.LoadMore(r.Context()); err != nil {
		s.logger.Warn("load more failed", "error", err)
	}
	writeJSON(w, http.StatusOK, s.store.GetState())
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Page int `json:"page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if err := s.store.SetPage(r.Context(), payload.Page); err != nil {
		s.logger.Warn("set page failed", "page", payload.Page, "error", err)
	}
	writeJSON(w, http.StatusOK, s.store.GetState())
}

func (s *Server) handlePageSize(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PageSize int `json:"page_size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if err := s.store.SetPageSize(r.Context(), payload.PageSize); err != nil {
		s.logger.Warn("set page size failed", "page_size", payload.PageSize, "error", err)
	}
	writeJSON(w, http.StatusOK, s.store.GetState())
}

func (s *Server) handleTotalCount(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if err := s.store.UpdateTotalCount(r.Context(), payload.Category); err != nil {
		s.logger.Warn("total count refresh failed", "category", payload.Category, "error", err)
	}
	writeJSON(w, http.StatusOK, s.store.GetState())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": strings.TrimSpace(fmt.Sprintf(format, args...)),
			"status":  status,
		},
	})
}
