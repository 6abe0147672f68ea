package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CatalogClient captures the HTTP calls the engine issues toward the catalog
// API. It performs no retries and keeps no cache; both are the orchestrator's
// job.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCatalogClient configures a client with sane defaults.
func NewCatalogClient(baseURL string) *CatalogClient {
	return &CatalogClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ListParams carries every knob the paginated list endpoint accepts.
// Cursor-based continuation is preferred; Offset is the fallback.
type ListParams struct {
	Category  string
	Sort      Sort
	Cursor    string
	Limit     int
	Offset    int
	PriceMin  float64
	PriceMax  float64
	MinRating float64
	Tags      []string
	Features  []string
	Search    string
}

// ListResponse wraps one page of raw catalog records.
type ListResponse struct {
	Items   []RawItem `json:"items"`
	Total   int       `json:"total"`
	HasMore bool      `json:"has_more"`
	Cursor  string    `json:"cursor,omitempty"`
}

type countResponse struct {
	Total int `json:"total"`
}

// CountItems returns the item total, optionally scoped to a category.
// An empty category means the whole catalog.
func (c *CatalogClient) CountItems(ctx context.Context, category string) (int, error) {
	endpoint := c.baseURL + "/catalog/api/items/count"
	query := make(url.Values)
	if category != "" && category != AllCategories {
		query.Set("category", category)
	}
	var resp countResponse
	if err := c.getJSON(ctx, endpoint, query, &resp); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return resp.Total, nil
}

// CountSearchResults returns the number of items matching a free-text query
// across all searchable fields.
func (c *CatalogClient) CountSearchResults(ctx context.Context, q string) (int, error) {
	endpoint := c.baseURL + "/catalog/api/search/count"
	query := make(url.Values)
	query.Set("q", q)
	var resp countResponse
	if err := c.getJSON(ctx, endpoint, query, &resp); err != nil {
		return 0, fmt.Errorf("count search results: %w", err)
	}
	return resp.Total, nil
}

// ListItems fetches one page of items matching category, filters and sort.
func (c *CatalogClient) ListItems(ctx context.Context, p ListParams) (ListResponse, error) {
	endpoint := c.baseURL + "/catalog/api/items"
	query := make(url.Values)
	if p.Category != "" && p.Category != AllCategories {
		query.Set("category", p.Category)
	}
	if p.Sort != "" {
		query.Set("sort", string(p.Sort))
	}
	if p.Cursor != "" {
		query.Set("cursor", p.Cursor)
	} else if p.Offset > 0 {
		query.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.Limit > 0 {
		query.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.PriceMin > 0 {
		query.Set("price_min", formatFloat(p.PriceMin))
	}
	if p.PriceMax > 0 {
		query.Set("price_max", formatFloat(p.PriceMax))
	}
	if p.MinRating > 0 {
		query.Set("min_rating", formatFloat(p.MinRating))
	}
	if len(p.Tags) > 0 {
		query.Set("tags", strings.Join(p.Tags, ","))
	}
	if len(p.Features) > 0 {
		query.Set("features", strings.Join(p.Features, ","))
	}
	if p.Search != "" {
		query.Set("q", p.Search)
	}
	var resp ListResponse
	if err := c.getJSON(ctx, endpoint, query, &resp); err != nil {
		return ListResponse{}, fmt.Errorf("list items: %w", err)
	}
	return resp, nil
}

func (c *CatalogClient) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	target := endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog responded with %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
