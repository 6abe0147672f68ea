package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItems() []Item {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []Item{
		{
			ID:          "inv-1",
			Name:        "Invoice Automator",
			Description: "generates and sends invoices",
			Category:    "Finance",
			Tags:        []string{"invoicing", "automation"},
			Features:    []string{"api-access"},
			Creator:     Creator{Name: "Mira", Username: "mira"},
			Price:       19.99,
			Rating:      Rating{Average: 4.8, Count: 120},
			UsersCount:  5000,
			CreatedAt:   base.Add(48 * time.Hour),
		},
		{
			ID:          "lead-1",
			Name:        "Lead Scout",
			Description: "finds leads and handles invoice reminders",
			Category:    "Sales",
			Tags:        []string{"crm"},
			Features:    []string{"webhooks"},
			Creator:     Creator{Name: "Devon", Username: "devon"},
			Price:       49,
			Rating:      Rating{Average: 4.1, Count: 80},
			UsersCount:  9000,
			CreatedAt:   base.Add(24 * time.Hour),
		},
		{
			ID:          "scribe-1",
			Name:        "Meeting Scribe",
			Description: "summarizes calls",
			Category:    "Productivity",
			Tags:        []string{"scheduling"},
			Features:    []string{"export", "api-access"},
			Creator:     Creator{Name: "Kai", Username: "kai"},
			Price:       0,
			Rating:      Rating{Average: 3.9, Count: 40},
			UsersCount:  20000,
			CreatedAt:   base,
		},
	}
}

func TestIndexNotReady(t *testing.T) {
	var idx *Index
	_, err := idx.Query("anything", DefaultFilters(), 1, 10)
	assert.ErrorIs(t, err, ErrIndexNotReady)
}

func TestQueryDeterministic(t *testing.T) {
	idx := NewIndex(testItems())
	f := DefaultFilters()

	first, err := idx.Query("invoice", f, 1, 10)
	require.NoError(t, err)
	second, err := idx.Query("invoice", f, 1, 10)
	require.NoError(t, err)

	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, first.TotalItems, second.TotalItems)
}

func TestQueryWeightsNameOverDescription(t *testing.T) {
	idx := NewIndex(testItems())

	result, err := idx.Query("invoice", DefaultFilters(), 1, 10)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	// "Invoice Automator" matches in the name; "Lead Scout" only in the
	// description, so it ranks below.
	assert.Equal(t, "inv-1", result.Items[0].ID)
	assert.Equal(t, "lead-1", result.Items[1].ID)
}

func TestQueryTypoTolerant(t *testing.T) {
	idx := NewIndex(testItems())

	result, err := idx.Query("invoce", DefaultFilters(), 1, 10)
	require.NoError(t, err)
	require.NotEmpty(t, result.Items)
	assert.Equal(t, "inv-1", result.Items[0].ID)
}

func TestQueryNoSearchReturnsAll(t *testing.T) {
	idx := NewIndex(testItems())

	result, err := idx.Query("", DefaultFilters(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalItems)
}

func TestQueryFilters(t *testing.T) {
	idx := NewIndex(testItems())

	t.Run("category", func(t *testing.T) {
		f := DefaultFilters()
		f.Category = "Sales"
		result, err := idx.Query("", f, 1, 10)
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "lead-1", result.Items[0].ID)
	})

	t.Run("price range", func(t *testing.T) {
		f := DefaultFilters()
		f.PriceRange = PriceRange{Min: 10, Max: 30}
		result, err := idx.Query("", f, 1, 10)
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "inv-1", result.Items[0].ID)
	})

	t.Run("min rating", func(t *testing.T) {
		f := DefaultFilters()
		f.MinRating = 4.0
		result, err := idx.Query("", f, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 2, result.TotalItems)
	})

	t.Run("tags OR membership", func(t *testing.T) {
		f := DefaultFilters()
		f.Tags = []string{"crm", "scheduling"}
		result, err := idx.Query("", f, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 2, result.TotalItems)
	})

	t.Run("features OR membership", func(t *testing.T) {
		f := DefaultFilters()
		f.Features = []string{"api-access"}
		result, err := idx.Query("", f, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 2, result.TotalItems)
	})

	t.Run("combined filters intersect", func(t *testing.T) {
		f := DefaultFilters()
		f.Features = []string{"api-access"}
		f.MinRating = 4.0
		result, err := idx.Query("", f, 1, 10)
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "inv-1", result.Items[0].ID)
	})
}

func TestQuerySorts(t *testing.T) {
	idx := NewIndex(testItems())

	sortCases := []struct {
		sort  Sort
		first string
	}{
		{SortRecency, "inv-1"},
		{SortRating, "inv-1"},
		{SortPopularity, "scribe-1"},
		{SortPriceAsc, "scribe-1"},
		{SortPriceDesc, "lead-1"},
	}
	for _, tc := range sortCases {
		t.Run(string(tc.sort), func(t *testing.T) {
			f := DefaultFilters()
			f.Sort = tc.sort
			result, err := idx.Query("", f, 1, 10)
			require.NoError(t, err)
			require.NotEmpty(t, result.Items)
			assert.Equal(t, tc.first, result.Items[0].ID)
		})
	}
}

func TestQueryPagination(t *testing.T) {
	idx := NewIndex(testItems())
	f := DefaultFilters()

	page1, err := idx.Query("", f, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page1.Items, 2)
	assert.Equal(t, 3, page1.TotalItems)

	page2, err := idx.Query("", f, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page2.Items, 1)

	page3, err := idx.Query("", f, 3, 2)
	require.NoError(t, err)
	assert.Empty(t, page3.Items)
}

func TestQueryDoesNotMutateSnapshot(t *testing.T) {
	items := testItems()
	idx := NewIndex(items)

	f := DefaultFilters()
	f.Sort = SortPriceAsc
	_, err := idx.Query("", f, 1, 10)
	require.NoError(t, err)

	assert.Equal(t, "inv-1", items[0].ID, "snapshot order must be untouched")
}
