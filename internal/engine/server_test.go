package engine

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGatewayServer(t *testing.T, items []RawItem) (*fakeCatalog, *httptest.Server) {
	t.Helper()
	fc, store := newTestStore(t, items)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewServer(store, logger).Router())
	t.Cleanup(srv.Close)
	return fc, srv
}

func decodeState(t *testing.T, resp *http.Response) State {
	t.Helper()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	return state
}

func TestGatewayRefreshAndState(t *testing.T) {
	_, srv := newGatewayServer(t, makeRawItems(45))

	resp, err := http.Post(srv.URL+"/search/refresh", "application/json", nil)
	require.NoError(t, err)
	state := decodeState(t, resp)
	assert.Len(t, state.Items, defaultPageSize)
	assert.Equal(t, 45, state.Pagination.TotalItems)
	assert.False(t, state.Degraded)

	resp, err = http.Get(srv.URL + "/search/state")
	require.NoError(t, err)
	state = decodeState(t, resp)
	assert.Len(t, state.Items, defaultPageSize)
}

func TestGatewayFilterPatch(t *testing.T) {
	fc, srv := newGatewayServer(t, makeRawItems(120))

	resp, err := http.Post(srv.URL+"/search/refresh", "application/json", nil)
	require.NoError(t, err)
	decodeState(t, resp)
	calls := fc.listCalls.Load()

	body := `{"category":"Productivity","toggle_tags":["automation"]}`
	resp, err = http.Post(srv.URL+"/search/filters", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	state := decodeState(t, resp)

	assert.Equal(t, "client_filtered", state.Mode)
	assert.Equal(t, "Productivity", state.Filters.Category)
	assert.Equal(t, []string{"automation"}, state.Filters.Tags)
	assert.Len(t, state.Items, 15)
	assert.Equal(t, calls, fc.listCalls.Load(), "client-filtered patch stays local")
}

func TestGatewayFilterPatchBadJSON(t *testing.T) {
	_, srv := newGatewayServer(t, nil)

	resp, err := http.Post(srv.URL+"/search/filters", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	errBody, ok := payload["error"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, errBody["message"])
	assert.EqualValues(t, http.StatusBadRequest, errBody["status"])
}

func TestGatewayLoadMoreAndPage(t *testing.T) {
	_, srv := newGatewayServer(t, makeRawItems(45))

	resp, err := http.Post(srv.URL+"/search/refresh", "application/json", nil)
	require.NoError(t, err)
	decodeState(t, resp)

	resp, err = http.Post(srv.URL+"/search/load-more", "application/json", nil)
	require.NoError(t, err)
	state := decodeState(t, resp)
	assert.Len(t, state.Items, 40)
	assert.Equal(t, 2, state.Pagination.CurrentPage)

	resp, err = http.Post(srv.URL+"/search/page", "application/json", strings.NewReader(`{"page":1}`))
	require.NoError(t, err)
	state = decodeState(t, resp)
	assert.Equal(t, 1, state.Pagination.CurrentPage)
	assert.Len(t, state.Items, defaultPageSize)

	resp, err = http.Post(srv.URL+"/search/page-size", "application/json", strings.NewReader(`{"page_size":10}`))
	require.NoError(t, err)
	state = decodeState(t, resp)
	assert.Equal(t, 10, state.Pagination.PageSize)
	assert.Len(t, state.Items, 10)
}
