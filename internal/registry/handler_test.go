package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerInvalidatesListingsOnMutation(t *testing.T) {
	bumps := 0
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, NewService(newMockRepository()), func(context.Context) { bumps++ })
	r := chi.NewRouter()
	handler.MountRoutes(r)

	post := func(path string, body any) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != nil {
			payload, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(payload)
		}
		req := httptest.NewRequest(http.MethodPost, path, reader)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/accounts", map[string]any{"number": "1000"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, bumps)

	var a Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))

	rec = post(fmt.Sprintf("/accounts/%d", a.ID), map[string]any{"description": "infra"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, bumps)

	rec = post(fmt.Sprintf("/accounts/%d/delete", a.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, bumps, "deactivation changes split warnings in listings")

	rec = post("/link-types", map[string]any{"title": "Jira", "url_template": "https://jira.example.com/browse/{value}"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 4, bumps, "template changes alter deep links in listings")

	// Reads and rejected mutations leave the cache alone.
	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	readRec := httptest.NewRecorder()
	r.ServeHTTP(readRec, req)
	require.Equal(t, http.StatusOK, readRec.Code)
	assert.Equal(t, 4, bumps)

	rec = post("/accounts", map[string]any{"number": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 4, bumps)
}

func TestHandlerWithoutInvalidateHook(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, NewService(newMockRepository()), nil)
	r := chi.NewRouter()
	handler.MountRoutes(r)

	payload, err := json.Marshal(map[string]any{"number": "1000"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/accounts", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}
