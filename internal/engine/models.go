package engine

import (
	"encoding/json"
	"math"
	"time"
)

// AllCategories is the sentinel meaning no category constraint.
const AllCategories = "All"

// Sort enumerates the orderings the engine can apply, locally or remotely.
type Sort string

const (
	SortRecency    Sort = "recency"
	SortRating     Sort = "rating"
	SortPopularity Sort = "popularity"
	SortPriceAsc   Sort = "price_asc"
	SortPriceDesc  Sort = "price_desc"
)

// Creator identifies who published a listing.
type Creator struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Rating aggregates review data for a listing.
type Rating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// Item is the canonical listing shape every raw record is normalized into.
type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Categories  []string  `json:"categories,omitempty"`
	Tags        []string  `json:"tags"`
	Features    []string  `json:"features"`
	Creator     Creator   `json:"creator"`
	Price       float64   `json:"price"`
	Rating      Rating    `json:"rating"`
	UsersCount  int       `json:"users_count"`
	Views       int       `json:"views"`
	Featured    bool      `json:"featured"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RawItem mirrors the loosely typed JSON the catalog API returns. Price and a
// few other fields arrive in heterogeneous shapes, so they stay raw until the
// normalizer has a look at them.
type RawItem struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Title        string          `json:"title,omitempty"`
	Description  string          `json:"description"`
	Category     string          `json:"category,omitempty"`
	Categories   []string        `json:"categories,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Features     []string        `json:"features,omitempty"`
	Creator      *Creator        `json:"creator,omitempty"`
	Price        json.RawMessage `json:"price,omitempty"`
	PriceDetails json.RawMessage `json:"price_details,omitempty"`
	Rating       *Rating         `json:"rating,omitempty"`
	UsersCount   int             `json:"users_count,omitempty"`
	Views        int             `json:"views,omitempty"`
	Featured     bool            `json:"featured,omitempty"`
	Image        string          `json:"image,omitempty"`
	ImageURL     string          `json:"image_url,omitempty"`
	CreatedAt    time.Time       `json:"created_at,omitempty"`
}

// PriceRange bounds the price filter, both ends inclusive.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultPriceRange spans every price the catalog can hold.
func DefaultPriceRange() PriceRange {
	return PriceRange{Min: 0, Max: math.MaxFloat64}
}

// Filters is the user's current query. It is the single source of truth;
// filtering never mutates item data.
type Filters struct {
	Category    string     `json:"category"`
	SearchQuery string     `json:"search_query"`
	Sort        Sort       `json:"sort"`
	PriceRange  PriceRange `json:"price_range"`
	MinRating   float64    `json:"min_rating"`
	Tags        []string   `json:"tags"`
	Features    []string   `json:"features"`
}

// DefaultFilters returns the unconstrained query.
func DefaultFilters() Filters {
	return Filters{
		Category:   AllCategories,
		Sort:       SortRecency,
		PriceRange: DefaultPriceRange(),
	}
}

// Pagination describes one fetched window of results.
type Pagination struct {
	CurrentPage   int    `json:"current_page"`
	PageSize      int    `json:"page_size"`
	TotalItems    int    `json:"total_items"`
	TotalPages    int    `json:"total_pages"`
	HasMore       bool   `json:"has_more"`
	Cursor        string `json:"cursor,omitempty"`
	IsLoadingMore bool   `json:"is_loading_more"`
}

// TotalPagesFor computes the page count invariant: always at least one page.
func TotalPagesFor(totalItems, pageSize int) int {
	if pageSize < 1 {
		return 1
	}
	pages := (totalItems + pageSize - 1) / pageSize
	if pages < 1 {
		return 1
	}
	return pages
}

// Snapshot is the in-memory item collection the local index is built from.
type Snapshot struct {
	Items     []Item
	FetchedAt time.Time
}

// Valid reports whether the snapshot exists and has not outlived the TTL.
func (s *Snapshot) Valid(ttl time.Duration) bool {
	if s == nil || len(s.Items) == 0 {
		return false
	}
	return time.Since(s.FetchedAt) < ttl
}
