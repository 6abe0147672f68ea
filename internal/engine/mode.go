package engine

import "strings"

// Mode names the three query-execution strategies the orchestrator can pick.
type Mode int

const (
	// ModeClientFiltered serves category browsing synchronously from the
	// local index, no network involved.
	ModeClientFiltered Mode = iota
	// ModeServerBrowse pages through the catalog with cursor or offset
	// pagination.
	ModeServerBrowse
	// ModeServerSearch runs free-text search against the catalog and
	// reconciles the authoritative total with the local cache.
	ModeServerSearch
)

func (m Mode) String() string {
	switch m {
	case ModeClientFiltered:
		return "client_filtered"
	case ModeServerBrowse:
		return "server_browse"
	case ModeServerSearch:
		return "server_search"
	default:
		return "unknown"
	}
}

// SelectMode decides which strategy applies to the current filters. It is a
// pure function so the decision table can be tested in isolation.
//
// Search text always wins. Category browsing stays local only while a valid
// snapshot exists; otherwise everything goes through the server.
func SelectMode(f Filters, snapshotReady bool) Mode {
	if strings.TrimSpace(f.SearchQuery) != "" {
		return ModeServerSearch
	}
	if f.Category != "" && f.Category != AllCategories && snapshotReady {
		return ModeClientFiltered
	}
	return ModeServerBrowse
}
