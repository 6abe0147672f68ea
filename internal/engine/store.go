package engine

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultSnapshotTTL bounds how long a snapshot keeps serving Mode A
	// before the next load goes back to the catalog.
	DefaultSnapshotTTL = 30 * time.Minute

	// serverCap mirrors the catalog's hard page limit; requests above it
	// are clipped server-side anyway, so the engine never asks for more.
	serverCap = 50

	// probeLimit is the small fetch used to confirm an empty search result
	// without over-fetching.
	probeLimit = 10

	// snapshotMaxItems caps how many items a snapshot accumulates while
	// paging through the catalog on initial load.
	snapshotMaxItems = 500

	defaultPageSize  = 20
	derivedViewLimit = 10
)

// State is the read-only snapshot handed to callers. Slices are copies; the
// caller cannot reach the store's internals through it.
type State struct {
	Items       []Item     `json:"items"`
	Pagination  Pagination `json:"pagination"`
	Filters     Filters    `json:"filters"`
	Featured    []Item     `json:"featured"`
	Recommended []Item     `json:"recommended"`
	Mode        string     `json:"mode"`
	IsLoading   bool       `json:"is_loading"`
	// Degraded marks results produced by a fallback path; their counts are
	// best-effort, not authoritative.
	Degraded bool `json:"degraded"`
}

// Store is the single mutable state holder behind the search UI. It decides
// per request whether a query is answered from the local index or the remote
// catalog, reconciles counts between the two, and keeps pagination state
// consistent across category browsing, free-text search, and filter changes.
//
// All mutation funnels through methods; the snapshot and filter state are
// owned exclusively by the store.
type Store struct {
	client *CatalogClient
	logger *slog.Logger
	ttl    time.Duration

	mu          sync.Mutex
	items       []Item
	filters     Filters
	pagination  Pagination
	snapshot    *Snapshot
	index       *Index
	featured    []Item
	recommended []Item
	isLoading   bool
	degraded    bool

	// requestID increases with every state-changing intent; responses from
	// superseded requests are discarded instead of overwriting fresher state.
	requestID uint64
}

// NewStore wires an orchestrator against the given catalog client.
func NewStore(client *CatalogClient, logger *slog.Logger) *Store {
	return &Store{
		client:  client,
		logger:  logger,
		ttl:     DefaultSnapshotTTL,
		filters: DefaultFilters(),
		pagination: Pagination{
			CurrentPage: 1,
			PageSize:    defaultPageSize,
			TotalPages:  1,
		},
	}
}

// SetSnapshotTTL overrides the snapshot lifetime; useful in tests.
func (s *Store) SetSnapshotTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = ttl
}

// GetState returns a consistent copy of the current store state.
func (s *Store) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Items:       append([]Item(nil), s.items...),
		Pagination:  s.pagination,
		Filters:     s.filters,
		Featured:    append([]Item(nil), s.featured...),
		Recommended: append([]Item(nil), s.recommended...),
		Mode:        SelectMode(s.filters, s.snapshot.Valid(s.ttl)).String(),
		IsLoading:   s.isLoading,
		Degraded:    s.degraded,
	}
}

// nextRequestLocked invalidates any response still in flight.
func (s *Store) nextRequestLocked() uint64 {
	s.requestID++
	return s.requestID
}

func (s *Store) currentRequestLocked(id uint64) bool {
	return s.requestID == id
}

// LoadInitialData populates the snapshot, rebuilds the local index, and
// derives the featured/recommended views. A valid snapshot is reused unless
// forceRefresh is set; then no network traffic happens at all.
func (s *Store) LoadInitialData(ctx context.Context, forceRefresh bool) error {
	s.mu.Lock()
	if !forceRefresh && s.snapshot.Valid(s.ttl) {
		s.logger.Debug("snapshot still valid, skipping fetch", "items", len(s.snapshot.Items))
		s.applyClientPageLocked()
		s.mu.Unlock()
		return nil
	}
	reqID := s.nextRequestLocked()
	s.isLoading = true
	pageSize := s.pagination.PageSize
	s.mu.Unlock()

	items, err := s.fetchSnapshot(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLoading = false
	if !s.currentRequestLocked(reqID) {
		// A newer request superseded this load; drop the result.
		return nil
	}
	if err != nil {
		s.logger.Error("initial load failed", "error", err)
		s.degradeLocked()
		return err
	}

	s.snapshot = &Snapshot{Items: items, FetchedAt: time.Now().UTC()}
	s.index = NewIndex(items)
	s.featured = deriveFeatured(items, derivedViewLimit)
	s.recommended = deriveRecommended(items, derivedViewLimit)
	s.degraded = false

	s.pagination = Pagination{CurrentPage: 1, PageSize: pageSize}
	s.applyClientPageLocked()
	s.logger.Info("snapshot loaded", "items", len(items), "featured", len(s.featured), "recommended", len(s.recommended))
	return nil
}

// fetchSnapshot pages through the catalog until it has the full collection
// (or hits the snapshot cap), following continuation cursors.
func (s *Store) fetchSnapshot(ctx context.Context) ([]Item, error) {
	var collected []Item
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := s.client.ListItems(ctx, ListParams{
			Sort:   SortRecency,
			Cursor: cursor,
			Limit:  serverCap,
		})
		if err != nil {
			return nil, err
		}
		collected = append(collected, NormalizeItems(resp.Items)...)
		if !resp.HasMore || resp.Cursor == "" || len(collected) >= snapshotMaxItems {
			break
		}
		cursor = resp.Cursor
	}
	return collected, nil
}

// ApplyFilters re-evaluates which mode applies and refreshes the item list.
// With resetPagination the window restarts at page one; without it the
// current page and cursor carry over (used when only the page size changed).
func (s *Store) ApplyFilters(ctx context.Context, resetPagination bool) error {
	s.mu.Lock()
	if resetPagination {
		s.pagination.CurrentPage = 1
		s.pagination.Cursor = ""
	}
	mode := SelectMode(s.filters, s.snapshot.Valid(s.ttl))
	s.mu.Unlock()

	switch mode {
	case ModeClientFiltered:
		if err := s.applyClientFiltered(); err != nil {
			// Index absent; serve the query remotely instead.
			return s.applyServerBrowse(ctx)
		}
		return nil
	case ModeServerSearch:
		return s.applyServerSearch(ctx)
	default:
		return s.applyServerBrowse(ctx)
	}
}

// applyClientFiltered serves the query synchronously from the local index.
func (s *Store) applyClientFiltered() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyClientFilteredLocked()
}

func (s *Store) applyClientFilteredLocked() error {
	result, err := s.index.Query("", s.filters, s.pagination.CurrentPage, s.pagination.PageSize)
	if err != nil {
		// Index absent; callers fall back to the remote path.
		return err
	}
	s.items = result.Items
	s.pagination.TotalItems = result.TotalItems
	s.pagination.TotalPages = TotalPagesFor(result.TotalItems, s.pagination.PageSize)
	s.pagination.HasMore = s.pagination.CurrentPage < s.pagination.TotalPages
	s.pagination.Cursor = ""
	s.degraded = false
	return nil
}

// applyClientPageLocked projects the unfiltered snapshot onto the current
// page, used right after a snapshot (re)load.
func (s *Store) applyClientPageLocked() {
	if s.index == nil {
		return
	}
	result, err := s.index.Query("", s.filters, s.pagination.CurrentPage, s.pagination.PageSize)
	if err != nil {
		return
	}
	s.items = result.Items
	s.pagination.TotalItems = result.TotalItems
	s.pagination.TotalPages = TotalPagesFor(result.TotalItems, s.pagination.PageSize)
	s.pagination.HasMore = s.pagination.CurrentPage < s.pagination.TotalPages
}

// applyServerBrowse replaces the item list with one server page. Appending
// happens only through LoadMore.
func (s *Store) applyServerBrowse(ctx context.Context) error {
	s.mu.Lock()
	reqID := s.nextRequestLocked()
	s.isLoading = true
	params := s.browseParamsLocked()
	s.mu.Unlock()

	resp, err := s.client.ListItems(ctx, params)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLoading = false
	if !s.currentRequestLocked(reqID) {
		return nil
	}
	if err != nil {
		s.logger.Warn("browse fetch failed, degrading", "error", err)
		s.degradeLocked()
		return nil
	}
	s.items = NormalizeItems(resp.Items)
	s.pagination.TotalItems = resp.Total
	s.pagination.TotalPages = TotalPagesFor(resp.Total, s.pagination.PageSize)
	s.pagination.HasMore = s.pagination.CurrentPage < s.pagination.TotalPages
	s.pagination.Cursor = resp.Cursor
	s.degraded = false
	return nil
}

func (s *Store) browseParamsLocked() ListParams {
	return ListParams{
		Category:  s.filters.Category,
		Sort:      s.filters.Sort,
		Limit:     s.pagination.PageSize,
		Offset:    (s.pagination.CurrentPage - 1) * s.pagination.PageSize,
		PriceMin:  s.filters.PriceRange.Min,
		PriceMax:  boundedMax(s.filters.PriceRange.Max),
		MinRating: s.filters.MinRating,
		Tags:      s.filters.Tags,
		Features:  s.filters.Features,
	}
}

// applyServerSearch implements the count-then-reconcile algorithm:
//
//  1. Fetch the authoritative total for the query.
//  2. Check how many cached items already contain the search string.
//  3. If the cache covers the total, serve it without another fetch.
//  4. Otherwise fetch up to min(total, serverCap) items, or a small probe
//     when the total is zero, and trust the authoritative total throughout.
func (s *Store) applyServerSearch(ctx context.Context) error {
	s.mu.Lock()
	reqID := s.nextRequestLocked()
	s.isLoading = true
	query := s.filters.SearchQuery
	cached := substringMatches(s.items, query)
	params := s.browseParamsLocked()
	params.Search = query
	params.Offset = 0
	s.mu.Unlock()

	dbTotal, err := s.client.CountSearchResults(ctx, query)
	if err != nil {
		return s.searchFallback(reqID, query, err)
	}

	if len(cached) >= dbTotal && dbTotal > 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.isLoading = false
		if !s.currentRequestLocked(reqID) {
			return nil
		}
		s.items = cached[:dbTotal]
		s.setSearchTotalsLocked(dbTotal)
		s.degraded = false
		s.logger.Debug("search served from cache", "query", query, "total", dbTotal)
		return nil
	}

	params.Limit = dbTotal
	if params.Limit > serverCap {
		params.Limit = serverCap
	}
	if dbTotal == 0 {
		// Probe to confirm emptiness without over-fetching.
		params.Limit = probeLimit
	}

	resp, err := s.client.ListItems(ctx, params)
	if err != nil {
		return s.searchFallback(reqID, query, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLoading = false
	if !s.currentRequestLocked(reqID) {
		return nil
	}
	s.items = NormalizeItems(resp.Items)
	s.setSearchTotalsLocked(dbTotal)
	s.degraded = false
	s.logger.Debug("search fetched", "query", query, "fetched", len(s.items), "total", dbTotal)
	return nil
}

// searchFallback approximates the query from the snapshot when the catalog
// is unreachable. The result is flagged degraded: its count is local, not
// authoritative.
func (s *Store) searchFallback(reqID uint64, query string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLoading = false
	if !s.currentRequestLocked(reqID) {
		return nil
	}
	s.logger.Warn("search fetch failed, falling back to snapshot", "query", query, "error", cause)

	if s.snapshot.Valid(s.ttl) {
		result, err := s.index.Query(query, s.filters, s.pagination.CurrentPage, s.pagination.PageSize)
		if err == nil {
			s.items = result.Items
			s.setSearchTotalsLocked(result.TotalItems)
			s.degraded = true
			return nil
		}
	}
	s.degradeLocked()
	return nil
}

// setSearchTotalsLocked applies the search-mode pagination rule: hasMore is
// driven by how much of the authoritative total has been accumulated.
func (s *Store) setSearchTotalsLocked(total int) {
	s.pagination.TotalItems = total
	s.pagination.TotalPages = TotalPagesFor(total, s.pagination.PageSize)
	s.pagination.HasMore = len(s.items) < total
	s.pagination.Cursor = ""
}

// degradeLocked resets to an empty but structurally valid result set.
func (s *Store) degradeLocked() {
	s.items = []Item{}
	s.pagination.TotalItems = 0
	s.pagination.TotalPages = 1
	s.pagination.HasMore = false
	s.pagination.Cursor = ""
	s.pagination.IsLoadingMore = false
	s.isLoading = false
	s.degraded = true
}

// LoadMore appends the next window to the current list. It is a no-op when
// nothing is left, when a load is already in flight, or in client-filtered
// mode, and never throws in any of those cases.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.pagination.IsLoadingMore || !s.pagination.HasMore {
		s.mu.Unlock()
		return nil
	}
	mode := SelectMode(s.filters, s.snapshot.Valid(s.ttl))
	if mode == ModeClientFiltered {
		s.mu.Unlock()
		return nil
	}
	s.pagination.IsLoadingMore = true
	reqID := s.requestID
	params := s.browseParamsLocked()
	if mode == ModeServerSearch {
		params.Search = s.filters.SearchQuery
		params.Offset = len(s.items)
		params.Cursor = ""
		remaining := s.pagination.TotalItems - len(s.items)
		if remaining < params.Limit {
			params.Limit = remaining
		}
	} else if s.pagination.Cursor != "" {
		params.Cursor = s.pagination.Cursor
		params.Offset = 0
	} else {
		params.Offset = len(s.items)
	}
	s.mu.Unlock()

	resp, err := s.client.ListItems(ctx, params)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentRequestLocked(reqID) {
		// Filters changed while the page was in flight; discard it.
		s.pagination.IsLoadingMore = false
		return nil
	}
	s.pagination.IsLoadingMore = false
	if err != nil {
		s.logger.Warn("load more failed", "mode", mode.String(), "error", err)
		return err
	}

	// Items, cursor, page and hasMore move together so no caller observes a
	// grown list against a stale descriptor.
	s.items = append(s.items, NormalizeItems(resp.Items)...)
	if resp.Total > 0 {
		s.pagination.TotalItems = resp.Total
		s.pagination.TotalPages = TotalPagesFor(resp.Total, s.pagination.PageSize)
	}
	s.pagination.CurrentPage++
	s.pagination.Cursor = resp.Cursor
	if mode == ModeServerSearch {
		s.pagination.HasMore = len(s.items) < s.pagination.TotalItems
	} else {
		s.pagination.HasMore = resp.HasMore && len(s.items) < s.pagination.TotalItems
	}
	return nil
}

// SetPage jumps to the given page and re-runs the current query. Out-of-range
// pages are rejected as no-ops rather than clamped: the caller finds out
// nothing happened instead of landing somewhere it did not ask for.
func (s *Store) SetPage(ctx context.Context, page int) error {
	s.mu.Lock()
	if page < 1 || page > s.pagination.TotalPages {
		s.mu.Unlock()
		return nil
	}
	s.pagination.CurrentPage = page
	// A page jump invalidates forward-only cursors; offset pagination takes over.
	s.pagination.Cursor = ""
	s.mu.Unlock()
	return s.ApplyFilters(ctx, false)
}

// SetPageSize changes the window size and restarts from page one.
func (s *Store) SetPageSize(ctx context.Context, size int) error {
	s.mu.Lock()
	if size < 1 {
		s.mu.Unlock()
		return nil
	}
	s.pagination.PageSize = size
	s.mu.Unlock()
	return s.ApplyFilters(ctx, true)
}

// UpdateTotalCount refreshes the displayed total without touching the item
// list, keeping the "N results" figure honest next to stale cached items.
func (s *Store) UpdateTotalCount(ctx context.Context, category string) error {
	total, err := s.client.CountItems(ctx, category)
	if err != nil {
		s.logger.Warn("total count refresh failed", "category", category, "error", err)
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pagination.TotalItems = total
	s.pagination.TotalPages = TotalPagesFor(total, s.pagination.PageSize)
	if SelectMode(s.filters, s.snapshot.Valid(s.ttl)) != ModeServerSearch {
		s.pagination.HasMore = s.pagination.CurrentPage < s.pagination.TotalPages
	}
	return nil
}

// SetCategory selects a category; AllCategories lifts the constraint.
func (s *Store) SetCategory(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if category == "" {
		category = AllCategories
	}
	s.filters.Category = category
	s.nextRequestLocked()
}

// SetSearchQuery sets the free-text query; empty clears it.
func (s *Store) SetSearchQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters.SearchQuery = strings.TrimSpace(q)
	s.nextRequestLocked()
}

// ToggleTag adds or removes one tag from the OR-facet.
func (s *Store) ToggleTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters.Tags = toggleValue(s.filters.Tags, tag)
	s.nextRequestLocked()
}

// ToggleFeature adds or removes one feature from the OR-facet.
func (s *Store) ToggleFeature(feature string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters.Features = toggleValue(s.filters.Features, feature)
	s.nextRequestLocked()
}

// SetPriceRange updates the price bounds. An inverted range (min > max) is
// rejected as a no-op instead of being silently corrected.
func (s *Store) SetPriceRange(min, max float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if min < 0 || (max > 0 && min > max) {
		return
	}
	s.filters.PriceRange = PriceRange{Min: min, Max: max}
	s.nextRequestLocked()
}

// SetMinRating sets the rating floor; zero lifts it.
func (s *Store) SetMinRating(min float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if min < 0 || min > 5 {
		return
	}
	s.filters.MinRating = min
	s.nextRequestLocked()
}

// SetSort selects the ordering.
func (s *Store) SetSort(sortBy Sort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters.Sort = sortBy
	s.nextRequestLocked()
}

// ResetFilters restores the unconstrained query.
func (s *Store) ResetFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = DefaultFilters()
	s.nextRequestLocked()
}

func toggleValue(values []string, v string) []string {
	for i, existing := range values {
		if strings.EqualFold(existing, v) {
			return append(values[:i:i], values[i+1:]...)
		}
	}
	return append(values, v)
}

// substringMatches is the cheap reconciliation check: a case-insensitive
// containment scan over the cached items' text fields. Deliberately weaker
// than the fuzzy index; running full fuzzy search against the cache on every
// keystroke costs more than this estimate is worth.
func substringMatches(items []Item, query string) []Item {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var matched []Item
	for _, item := range items {
		haystack := strings.ToLower(strings.Join([]string{
			item.Name,
			item.Description,
			strings.Join(item.Tags, " "),
			item.Creator.Name,
			item.Creator.Username,
			item.Category,
		}, " "))
		if strings.Contains(haystack, q) {
			matched = append(matched, item)
		}
	}
	return matched
}

func deriveFeatured(items []Item, limit int) []Item {
	var featured []Item
	for _, item := range items {
		if item.Featured {
			featured = append(featured, item)
		}
	}
	SortItems(featured, SortRecency)
	if len(featured) > limit {
		featured = featured[:limit]
	}
	return featured
}

func deriveRecommended(items []Item, limit int) []Item {
	recommended := append([]Item(nil), items...)
	SortItemsByPopularityThenRating(recommended)
	if len(recommended) > limit {
		recommended = recommended[:limit]
	}
	return recommended
}

// SortItemsByPopularityThenRating orders the recommended view: popularity
// first, rating breaks ties, ID keeps the ordering deterministic.
func SortItemsByPopularityThenRating(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if popularity(items[i]) != popularity(items[j]) {
			return popularity(items[i]) > popularity(items[j])
		}
		if items[i].Rating.Average != items[j].Rating.Average {
			return items[i].Rating.Average > items[j].Rating.Average
		}
		return items[i].ID < items[j].ID
	})
}

func boundedMax(max float64) float64 {
	if max >= math.MaxFloat64 {
		return 0
	}
	return max
}
