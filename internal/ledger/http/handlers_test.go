package ledgerhttp

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quokka-track/quokka/internal/ledger"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := ledger.New(ledger.Config{Logger: logger})
	handler := NewHandler(logger, service, nil)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func createEntry(t *testing.T, r chi.Router, date string, duration int) ledger.Entry {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/entries", map[string]any{
		"date":     date,
		"duration": duration,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var entry ledger.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	return entry
}

func TestCreateEntryEndpoint(t *testing.T) {
	r := newTestRouter(t)

	entry := createEntry(t, r, "2024-01-05", 60)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "2024-01-05", entry.Date)
	assert.Equal(t, 60, entry.Duration)

	rec := doJSON(t, r, http.MethodPost, "/entries", map[string]any{"date": "05/01/2024"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/entries", map[string]any{"date": "2024-01-05", "duration": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateEntryEndpoint(t *testing.T) {
	r := newTestRouter(t)
	entry := createEntry(t, r, "2024-01-05", 60)

	rec := doJSON(t, r, http.MethodPost, "/entries/"+entry.ID, map[string]any{
		"description": "deploy",
		"references":  []map[string]any{{"link_type_id": 1, "value": "WI-9"}},
		"splits":      []map[string]any{{"account_id": 3, "duration": 30}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated ledger.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "deploy", updated.Description)
	require.Len(t, updated.References, 1)
	assert.Equal(t, "WI-9", updated.References[0].Value)
	require.Len(t, updated.Splits, 1)
	assert.Equal(t, int64(3), updated.Splits[0].AccountID)

	rec = doJSON(t, r, http.MethodPost, "/entries/nope", map[string]any{"description": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteEntryEndpoint(t *testing.T) {
	r := newTestRouter(t)
	entry := createEntry(t, r, "2024-01-05", 60)

	rec := doJSON(t, r, http.MethodPost, "/entries/"+entry.ID+"/delete", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/entries/"+entry.ID+"/delete", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDuplicateEntryEndpoint(t *testing.T) {
	r := newTestRouter(t)
	entry := createEntry(t, r, "2024-01-05", 60)

	rec := doJSON(t, r, http.MethodPost, "/entries/"+entry.ID+"/duplicate", map[string]any{
		"date": "2024-01-08",
		"link": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var dup ledger.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dup))
	assert.Equal(t, "2024-01-08", dup.Date)
	assert.NotEmpty(t, dup.GroupID)

	rec = doJSON(t, r, http.MethodGet, "/entries/"+entry.ID+"/group", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var group ledger.Group
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &group))
	assert.Len(t, group.Members, 2)
	assert.Equal(t, 120, group.Total)
}

func TestReorderEntryEndpoint(t *testing.T) {
	r := newTestRouter(t)
	e1 := createEntry(t, r, "2024-01-05", 10)
	e2 := createEntry(t, r, "2024-01-05", 20)

	rec := doJSON(t, r, http.MethodPost, "/entries/"+e2.ID+"/reorder", map[string]any{"before_id": e1.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, r, http.MethodGet, "/entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var days []ledger.Day
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &days))
	require.Len(t, days, 1)
	require.Len(t, days[0].Entries, 2)
	assert.Equal(t, e2.ID, days[0].Entries[0].ID)
	assert.Equal(t, e1.ID, days[0].Entries[1].ID)
}

func TestLinkAndUngroupEndpoints(t *testing.T) {
	r := newTestRouter(t)
	e1 := createEntry(t, r, "2024-01-05", 60)
	e2 := createEntry(t, r, "2024-01-06", 30)

	rec := doJSON(t, r, http.MethodPost, "/entries/"+e1.ID, map[string]any{"description": "build"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, r, http.MethodPost, "/entries/"+e2.ID, map[string]any{"description": "test"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Differing shared field without a resolution is rejected.
	rec = doJSON(t, r, http.MethodPost, "/entries/"+e1.ID+"/link", map[string]any{
		"target_entry_id": e2.ID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/entries/"+e1.ID+"/link", map[string]any{
		"target_entry_id": e2.ID,
		"resolution":      map[string]string{"description": "target"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var linked ledger.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &linked))
	assert.Equal(t, "test", linked.Description)
	assert.NotEmpty(t, linked.GroupID)

	rec = doJSON(t, r, http.MethodPost, "/entries/"+e1.ID+"/ungroup", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/entries/"+e2.ID+"/group", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var group ledger.Group
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &group))
	assert.Empty(t, group.GroupID, "group of one dissolves")
}

func TestSuggestLinksEndpoint(t *testing.T) {
	r := newTestRouter(t)
	e1 := createEntry(t, r, "2024-01-05", 60)
	e2 := createEntry(t, r, "2024-01-06", 30)

	rec := doJSON(t, r, http.MethodPost, "/entries/"+e1.ID, map[string]any{"description": "deploy"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, r, http.MethodPost, "/entries/"+e2.ID, map[string]any{"description": "deploy"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/entries/"+e1.ID+"/suggest-links", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var suggestions []ledger.Suggestion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &suggestions))
	require.Len(t, suggestions, 1)
	assert.Equal(t, e2.ID, suggestions[0].Entry.ID)

	rec = doJSON(t, r, http.MethodGet, "/entries/nope/suggest-links", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUndoRedoEndpoints(t *testing.T) {
	r := newTestRouter(t)
	entry := createEntry(t, r, "2024-01-05", 60)

	rec := doJSON(t, r, http.MethodGet, "/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status ledger.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.CanUndo)
	assert.False(t, status.CanRedo)

	rec = doJSON(t, r, http.MethodPost, "/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result ledger.UndoResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.OK)
	assert.Equal(t, ledger.ActionCreate, result.ActionType)

	rec = doJSON(t, r, http.MethodGet, "/entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var days []ledger.Day
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &days))
	assert.Empty(t, days)

	rec = doJSON(t, r, http.MethodPost, "/redo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.OK)

	rec = doJSON(t, r, http.MethodGet, "/entries/"+entry.ID+"/group", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "redo brought the entry back")

	// Nothing left to redo.
	rec = doJSON(t, r, http.MethodPost, "/redo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.OK)
}
