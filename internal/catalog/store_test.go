package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/agent-catalog/internal/sqliteutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqliteutil.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewStore(db)
	require.NoError(t, store.Init(context.Background()))
	return store
}

// seedFixture inserts four listings with distinct categories, prices, ratings
// and timestamps so every filter and sort has something to bite on.
func seedFixture(t *testing.T, store *Store) {
	t.Helper()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	fixtures := []Item{
		{
			ID: "inv-1", Name: "Invoice Automator", Description: "builds and sends invoices",
			Category: "Finance", Tags: []string{"invoicing", "automation"}, Features: []string{"api-access"},
			CreatorName: "Mira", CreatorUsername: "mira",
			PriceRaw: "$19.99", Price: 19.99, RatingAverage: 4.8, RatingCount: 120,
			UsersCount: 5000, Views: 9000, Featured: true, CreatedAt: base.Add(72 * time.Hour),
		},
		{
			ID: "lead-1", Name: "Lead Scout", Description: "finds leads and drafts an invoice follow-up",
			Category: "Sales", Tags: []string{"crm"}, Features: []string{"webhooks", "export"},
			CreatorName: "Devon", CreatorUsername: "devon",
			PriceRaw: "49", Price: 49, RatingAverage: 4.1, RatingCount: 45,
			UsersCount: 800, Views: 30000, CreatedAt: base.Add(48 * time.Hour),
		},
		{
			ID: "triage-1", Name: "Inbox Triage", Description: "sorts support email",
			Category: "Support", Tags: []string{"email", "automation"}, Features: []string{"multi-language"},
			CreatorName: "Alina", CreatorUsername: "alina",
			PriceRaw: "9.99", Price: 9.99, RatingAverage: 4.5, RatingCount: 80,
			UsersCount: 2600, Views: 4000, CreatedAt: base.Add(24 * time.Hour),
		},
		{
			ID: "scribe-1", Name: "Meeting Scribe", Description: "summarizes meetings",
			Category: "Productivity", Tags: []string{"ai", "scheduling"}, Features: []string{"templates"},
			CreatorName: "Kai", CreatorUsername: "kai",
			PriceRaw: "Free", Price: 0, RatingAverage: 3.9, RatingCount: 300,
			UsersCount: 20000, Views: 150000, CreatedAt: base,
		},
	}
	for _, item := range fixtures {
		_, err := store.Insert(context.Background(), item)
		require.NoError(t, err)
	}
}

func listIDs(items []Item) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func TestInsertFillsDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, err := store.Insert(ctx, Item{Name: "Bare Minimum"})
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.False(t, item.CreatedAt.IsZero())
	assert.NotNil(t, item.Tags)
	assert.NotNil(t, item.Features)

	_, err = store.Insert(ctx, Item{Name: "   "})
	assert.Error(t, err, "a nameless listing must be rejected")
}

func TestListRoundTripsItem(t *testing.T) {
	store := newTestStore(t)
	seedFixture(t, store)

	page, err := store.List(context.Background(), ListQuery{Category: "Finance"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	got := page.Items[0]
	assert.Equal(t, "inv-1", got.ID)
	assert.Equal(t, "Invoice Automator", got.Name)
	assert.Equal(t, []string{"invoicing", "automation"}, got.Tags)
	assert.Equal(t, []string{"api-access"}, got.Features)
	assert.Equal(t, "$19.99", got.PriceRaw)
	assert.Equal(t, 19.99, got.Price)
	assert.True(t, got.Featured)
	assert.WithinDuration(t, time.Date(2026, 2, 4, 9, 0, 0, 0, time.UTC), got.CreatedAt, time.Second)
}

func TestCount(t *testing.T) {
	store := newTestStore(t)
	seedFixture(t, store)
	ctx := context.Background()

	total, err := store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	total, err = store.Count(ctx, "finance")
	require.NoError(t, err)
	assert.Equal(t, 1, total, "category match is case-insensitive")

	total, err = store.Count(ctx, "Nonexistent")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCountSearch(t *testing.T) {
	store := newTestStore(t)
	seedFixture(t, store)
	ctx := context.Background()

	cases := []struct {
		name string
		q    string
		want int
	}{
		{name: "matches name and description", q: "invoice", want: 2},
		{name: "matches creator", q: "mira", want: 1},
		{name: "matches tag", q: "scheduling", want: 1},
		{name: "no match", q: "quantum", want: 0},
		{name: "empty query counts everything", q: "  ", want: 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			total, err := store.CountSearch(ctx, tc.q)
			require.NoError(t, err)
			assert.Equal(t, tc.want, total)
		})
	}
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)
	seedFixture(t, store)
	ctx := context.Background()

	cases := []struct {
		name  string
		query ListQuery
		want  []string
	}{
		{name: "category", query: ListQuery{Category: "Sales"}, want: []string{"lead-1"}},
		{name: "price range", query: ListQuery{PriceMin: 5, PriceMax: 25}, want: []string{"inv-1", "triage-1"}},
		{name: "min rating", query: ListQuery{MinRating: 4.4}, want: []string{"inv-1", "triage-1"}},
		{name: "single tag", query: ListQuery{Tags: []string{"automation"}}, want: []string{"inv-1", "triage-1"}},
		{name: "tags are OR", query: ListQuery{Tags: []string{"automation", "crm"}}, want: []string{"inv-1", "lead-1", "triage-1"}},
		{name: "features are OR", query: ListQuery{Features: []string{"webhooks", "templates"}}, want: []string{"lead-1", "scribe-1"}},
		{name: "search", query: ListQuery{Search: "invoice"}, want: []string{"inv-1", "lead-1"}},
		{name: "search with category", query: ListQuery{Search: "invoice", Category: "Sales"}, want: []string{"lead-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := store.List(ctx, tc.query)
			require.NoError(t, err)
			assert.ElementsMatch(t, tc.want, listIDs(page.Items))
			assert.Equal(t, len(tc.want), page.Total)
		})
	}
}

func TestListSorts(t *testing.T) {
	store := newTestStore(t)
	seedFixture(t, store)
	ctx := context.Background()

	cases := []struct {
		sort      string
		wantFirst string
	}{
		{sort: "recency", wantFirst: "inv-1"},
		{sort: "rating", wantFirst: "inv-1"},
		{sort: "popularity", wantFirst: "scribe-1"},
		{sort: "price_asc", wantFirst: "scribe-1"},
		{sort: "price_desc", wantFirst: "lead-1"},
	}
	for _, tc := range cases {
		t.Run(tc.sort, func(t *testing.T) {
			page, err := store.List(ctx, ListQuery{Sort: tc.sort})
			require.NoError(t, err)
			require.NotEmpty(t, page.Items)
			assert.Equal(t, tc.wantFirst, page.Items[0].ID)
		})
	}
}

func TestListCursorContinuation(t *testing.T) {
	store := newTestStore(t)
	seedFixture(t, store)
	ctx := context.Background()

	first, err := store.List(ctx, ListQuery{Sort: "recency", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"inv-1", "lead-1"}, listIDs(first.Items))
	assert.Equal(t, 4, first.Total)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.Cursor)

	second, err := store.List(ctx, ListQuery{Sort: "recency", Limit: 2, Cursor: first.Cursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"triage-1", "scribe-1"}, listIDs(second.Items))
	assert.False(t, second.HasMore)
	assert.Empty(t, second.Cursor)
}

func TestListCursorBoundToQuery(t *testing.T) {
	store := newTestStore(t)
	seedFixture(t, store)
	ctx := context.Background()

	first, err := store.List(ctx, ListQuery{Sort: "recency", Limit: 2})
	require.NoError(t, err)
	require.NotEmpty(t, first.Cursor)

	// Same cursor against a different filter combination must be rejected.
	_, err = store.List(ctx, ListQuery{Sort: "recency", Limit: 2, Cursor: first.Cursor, Category: "Sales"})
	assert.ErrorIs(t, err, ErrBadCursor)

	_, err = store.List(ctx, ListQuery{Cursor: "not a cursor"})
	assert.ErrorIs(t, err, ErrBadCursor)
}

func TestListClipsLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		_, err := store.Insert(ctx, Item{
			Name:      fmt.Sprintf("Bulk Listing %03d", i),
			Category:  "Bulk",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	page, err := store.List(ctx, ListQuery{Category: "Bulk", Limit: 500})
	require.NoError(t, err)
	assert.Len(t, page.Items, maxLimit)
	assert.Equal(t, 60, page.Total)
	assert.True(t, page.HasMore)

	page, err = store.List(ctx, ListQuery{Category: "Bulk"})
	require.NoError(t, err)
	assert.Len(t, page.Items, defaultLimit)
}

func TestSeedRandom(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	items, err := store.SeedRandom(ctx, 30)
	require.NoError(t, err)
	require.Len(t, items, 30)

	total, err := store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 30, total)

	for _, item := range items {
		assert.NotEmpty(t, item.ID)
		assert.NotEmpty(t, item.Name)
		assert.NotEmpty(t, item.PriceRaw)
		// The parsed price must agree with the raw representation.
		assert.Equal(t, parseSeedPrice(item.PriceRaw), item.Price)
		assert.GreaterOrEqual(t, item.Price, 0.0)
	}
}

func TestParseSeedPrice(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{raw: "Free", want: 0},
		{raw: "free", want: 0},
		{raw: "0", want: 0},
		{raw: "9.99", want: 9.99},
		{raw: "$19.99", want: 19.99},
		{raw: "$129.00", want: 129},
		{raw: "garbage", want: 0},
		{raw: "", want: 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseSeedPrice(tc.raw), "raw %q", tc.raw)
	}
}
