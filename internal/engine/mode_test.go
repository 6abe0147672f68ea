package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectMode(t *testing.T) {
	tests := []struct {
		name          string
		filters       Filters
		snapshotReady bool
		want          Mode
	}{
		{
			name:          "category browse with snapshot",
			filters:       Filters{Category: "Productivity"},
			snapshotReady: true,
			want:          ModeClientFiltered,
		},
		{
			name:          "category browse without snapshot",
			filters:       Filters{Category: "Productivity"},
			snapshotReady: false,
			want:          ModeServerBrowse,
		},
		{
			name:          "all categories",
			filters:       Filters{Category: AllCategories},
			snapshotReady: true,
			want:          ModeServerBrowse,
		},
		{
			name:          "empty category treated as all",
			filters:       Filters{},
			snapshotReady: true,
			want:          ModeServerBrowse,
		},
		{
			name:          "search wins over category",
			filters:       Filters{Category: "Productivity", SearchQuery: "invoice"},
			snapshotReady: true,
			want:          ModeServerSearch,
		},
		{
			name:          "search without snapshot",
			filters:       Filters{SearchQuery: "invoice"},
			snapshotReady: false,
			want:          ModeServerSearch,
		},
		{
			name:          "whitespace query is no query",
			filters:       Filters{Category: "Sales", SearchQuery: "   "},
			snapshotReady: true,
			want:          ModeClientFiltered,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SelectMode(tc.filters, tc.snapshotReady))
		})
	}
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "client_filtered", ModeClientFiltered.String())
	assert.Equal(t, "server_browse", ModeServerBrowse.String())
	assert.Equal(t, "server_search", ModeServerSearch.String())
	assert.Equal(t, "unknown", Mode(99).String())
}
