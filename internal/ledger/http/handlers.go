// Package ledgerhttp exposes the entry ledger over a JSON API.
package ledgerhttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/quokka-track/quokka/internal/ledger"
	"github.com/quokka-track/quokka/internal/platform/httpx"
)

// Handler manages entry and history endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *ledger.Service
	cache    *ListCache
	validate *validator.Validate
}

// NewHandler builds a Handler instance. cache may be nil.
func NewHandler(logger *slog.Logger, service *ledger.Service, cache *ListCache) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		cache:    cache,
		validate: validator.New(),
	}
}

// MountRoutes registers entry and history routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/entries", h.listEntries)
	r.Post("/entries", h.createEntry)
	r.Post("/entries/{id}", h.updateEntry)
	r.Post("/entries/{id}/delete", h.deleteEntry)
	r.Post("/entries/{id}/duplicate", h.duplicateEntry)
	r.Post("/entries/{id}/reorder", h.reorderEntry)
	r.Post("/entries/{id}/link", h.linkEntry)
	r.Post("/entries/{id}/ungroup", h.ungroupEntry)
	r.Get("/entries/{id}/suggest-links", h.suggestLinks)
	r.Get("/entries/{id}/group", h.groupOf)

	r.Post("/undo", h.undo)
	r.Post("/redo", h.redo)
	r.Get("/history", h.historyStatus)
}

type referencePayload struct {
	LinkTypeID int64  `json:"link_type_id" validate:"required"`
	Value      string `json:"value"`
}

type splitPayload struct {
	AccountID int64 `json:"account_id" validate:"required"`
	Duration  int   `json:"duration" validate:"min=0"`
}

type createEntryRequest struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Duration *int   `json:"duration" validate:"omitempty,min=0"`
}

type updateEntryRequest struct {
	Date        *string             `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Duration    *int                `json:"duration" validate:"omitempty,min=0"`
	Description *string             `json:"description"`
	Notes       *string             `json:"notes"`
	References  *[]referencePayload `json:"references" validate:"omitempty,dive"`
	Splits      *[]splitPayload     `json:"splits" validate:"omitempty,dive"`
}

type duplicateEntryRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Link bool   `json:"link"`
}

type reorderEntryRequest struct {
	BeforeID string `json:"before_id"`
}

type linkEntryRequest struct {
	TargetEntryID string            `json:"target_entry_id" validate:"required"`
	Resolution    map[string]string `json:"resolution"`
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")

	if payload, ok := h.cache.Get(r.Context(), from, to); ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
		return
	}

	days, err := h.service.List(r.Context(), from, to)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	payload, err := json.Marshal(days)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.cache.Set(r.Context(), from, to, payload)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	duration := 0
	if req.Duration != nil {
		duration = *req.Duration
	}
	entry, err := h.service.Create(r.Context(), req.Date, duration)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.cache.Bump(r.Context())
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) updateEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.Update(r.Context(), id, toPatch(req))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.cache.Bump(r.Context())
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.cache.Bump(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) duplicateEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req duplicateEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.Duplicate(r.Context(), id, req.Date, req.Link)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.cache.Bump(r.Context())
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) reorderEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req reorderEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.Reorder(r.Context(), id, req.BeforeID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.cache.Bump(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) linkEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req linkEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	resolution := make(ledger.Resolution, len(req.Resolution))
	for field, side := range req.Resolution {
		resolution[ledger.SharedField(field)] = side
	}
	entry, err := h.service.Link(r.Context(), id, req.TargetEntryID, resolution)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.cache.Bump(r.Context())
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) ungroupEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Ungroup(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.cache.Bump(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) suggestLinks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := singleflightSuggest(r.Context(), id, func(ctx context.Context) (interface{}, error) {
		return h.service.SuggestLinks(ctx, id)
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) groupOf(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	group, err := h.service.GroupOf(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, group)
}

func (h *Handler) undo(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Undo(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if result.OK {
		h.cache.Bump(r.Context())
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) redo(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Redo(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if result.OK {
		h.cache.Bump(r.Context())
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) historyStatus(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.HistoryStatus())
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func toPatch(req updateEntryRequest) ledger.Patch {
	patch := ledger.Patch{
		Date:        req.Date,
		Duration:    req.Duration,
		Description: req.Description,
		Notes:       req.Notes,
	}
	if req.References != nil {
		refs := make([]ledger.Reference, len(*req.References))
		for i, rp := range *req.References {
			refs[i] = ledger.Reference{LinkTypeID: rp.LinkTypeID, Value: rp.Value}
		}
		patch.References = &refs
	}
	if req.Splits != nil {
		splits := make([]ledger.Split, len(*req.Splits))
		for i, sp := range *req.Splits {
			splits[i] = ledger.Split{AccountID: sp.AccountID, Duration: sp.Duration}
		}
		patch.Splits = &splits
	}
	return patch
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ledger.ErrInvalidArgument):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
	case errors.Is(err, ledger.ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
