package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Server exposes the catalog's HTTP API: count and paginated list endpoints
// consumed by the search gateway, plus admin endpoints for seeding data.
type Server struct {
	store  *Store
	logger *slog.Logger
}

// NewServer builds a server backed by the provided store.
func NewServer(store *Store, logger *slog.Logger) *Server {
	return &Server{store: store, logger: logger}
}

// Router wires all catalog routes under a single chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	})

	r.Route("/catalog", func(r chi.Router) {
		r.Post("/items", s.handleCreateItem)
		r.Post("/items/random", s.handleSeedRandom)

		r.Route("/api", func(r chi.Router) {
			r.Get("/items", s.handleListItems)
			r.Get("/items/count", s.handleCountItems)
			r.Get("/search/count", s.handleCountSearch)
		})
	})

	return r
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var payload Item
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	item, err := s.store.Insert(r.Context(), payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%s", err.Error())
		return
	}
	s.logger.Info("item created", "id", item.ID, "name", item.Name, "category", item.Category)
	writeJSON(w, http.StatusCreated, MarshalItem(item))
}

func (s *Server) handleSeedRandom(w http.ResponseWriter, r *http.Request) {
	count := parseIntDefault(r.URL.Query().Get("count"), 25)
	items, err := s.store.SeedRandom(r.Context(), count)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "seed items: %v", err)
		return
	}
	s.logger.Info("random items seeded", "count", len(items))
	resp := make([]map[string]any, 0, len(items))
	for _, item := range items {
		resp = append(resp, MarshalItem(item))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"items": resp, "count": len(resp)})
}

func (s *Server) handleCountItems(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	total, err := s.store.Count(r.Context(), category)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "count items: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total})
}

func (s *Server) handleCountSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	total, err := s.store.CountSearch(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "count search: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	listQuery := ListQuery{
		Category:  strings.TrimSpace(query.Get("category")),
		Sort:      query.Get("sort"),
		Cursor:    query.Get("cursor"),
		Limit:     parseIntDefault(query.Get("limit"), defaultLimit),
		Offset:    parseIntDefault(query.Get("offset"), 0),
		PriceMin:  parseFloatDefault(query.Get("price_min"), 0),
		PriceMax:  parseFloatDefault(query.Get("price_max"), 0),
		MinRating: parseFloatDefault(query.Get("min_rating"), 0),
		Tags:      splitList(query.Get("tags")),
		Features:  splitList(query.Get("features")),
		Search:    query.Get("q"),
	}
	page, err := s.store.List(r.Context(), listQuery)
	if err != nil {
		if errors.Is(err, ErrBadCursor) {
			writeError(w, http.StatusBadRequest, "%s", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "list items: %v", err)
		return
	}

	items := make([]map[string]any, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, MarshalItem(item))
	}
	payload := map[string]any{
		"items":    items,
		"total":    page.Total,
		"has_more": page.HasMore,
	}
	if page.Cursor != "" {
		payload["cursor"] = page.Cursor
	}
	writeJSON(w, http.StatusOK, payload)
}

// MarshalItem renders the wire representation the gateway's normalizer sees.
// Price deliberately goes out in its raw submitted shape ("Free", "$19.99",
// plain numbers); coercing it is the client's job.
func MarshalItem(item Item) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"name":        item.Name,
		"description": item.Description,
		"category":    item.Category,
		"tags":        item.Tags,
		"features":    item.Features,
		"creator": map[string]any{
			"name":     item.CreatorName,
			"username": item.CreatorUsername,
		},
		"price": item.PriceRaw,
		"rating": map[string]any{
			"average": item.RatingAverage,
			"count":   item.RatingCount,
		},
		"users_count": item.UsersCount,
		"views":       item.Views,
		"featured":    item.Featured,
		"image":       item.Image,
		"created_at":  item.CreatedAt.Format(time.RFC3339),
	}
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func parseIntDefault(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloatDefault(v string, fallback float64) float64 {
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
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
