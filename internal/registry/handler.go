package registry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/quokka-track/quokka/internal/platform/httpx"
)

// Handler manages registry endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	validate   *validator.Validate
	invalidate func(context.Context)
}

// NewHandler builds a Handler instance. invalidate, when non-nil, runs after
// every registry mutation; entry listings embed account warnings and deep
// links, so their cache must not outlive a registry change. May be nil.
func NewHandler(logger *slog.Logger, service *Service, invalidate func(context.Context)) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		validate:   validator.New(),
		invalidate: invalidate,
	}
}

func (h *Handler) invalidateListings(r *http.Request) {
	if h.invalidate != nil {
		h.invalidate(r.Context())
	}
}

// MountRoutes registers registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts", h.createAccount)
	r.Post("/accounts/{id}", h.updateAccount)
	r.Post("/accounts/{id}/delete", h.deactivateAccount)

	r.Get("/link-types", h.listLinkTypes)
	r.Post("/link-types", h.createLinkType)
	r.Post("/link-types/{id}", h.updateLinkType)
	r.Post("/link-types/{id}/delete", h.deleteLinkType)
}

type createAccountRequest struct {
	Number      string `json:"number" validate:"required"`
	Description string `json:"description"`
	Project     string `json:"project"`
	OpenDate    string `json:"open_date" validate:"omitempty,datetime=2006-01-02"`
	CloseDate   string `json:"close_date" validate:"omitempty,datetime=2006-01-02"`
}

type updateAccountRequest struct {
	Number      *string `json:"number" validate:"omitempty,min=1"`
	Description *string `json:"description"`
	Project     *string `json:"project"`
	OpenDate    *string `json:"open_date" validate:"omitempty,datetime=2006-01-02"`
	CloseDate   *string `json:"close_date" validate:"omitempty,datetime=2006-01-02"`
	Active      *bool   `json:"active"`
}

type linkTypeRequest struct {
	Title       string `json:"title" validate:"required"`
	URLTemplate string `json:"url_template"`
}

type updateLinkTypeRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1"`
	URLTemplate *string `json:"url_template"`
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	accounts, err := h.service.ListAccounts(r.Context(), includeInactive)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.CreateAccount(r.Context(), AccountInput{
		Number:      req.Number,
		Description: req.Description,
		Project:     req.Project,
		OpenDate:    req.OpenDate,
		CloseDate:   req.CloseDate,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.invalidateListings(r)
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.UpdateAccount(r.Context(), id, AccountPatch{
		Number:      req.Number,
		Description: req.Description,
		Project:     req.Project,
		OpenDate:    req.OpenDate,
		CloseDate:   req.CloseDate,
		Active:      req.Active,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.invalidateListings(r)
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeactivateAccount(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.invalidateListings(r)
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) listLinkTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.ListLinkTypes(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if types == nil {
		types = []LinkType{}
	}
	httpx.JSON(w, http.StatusOK, types)
}

func (h *Handler) createLinkType(w http.ResponseWriter, r *http.Request) {
	var req linkTypeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lt, err := h.service.CreateLinkType(r.Context(), req.Title, req.URLTemplate)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.invalidateListings(r)
	httpx.JSON(w, http.StatusCreated, lt)
}

func (h *Handler) updateLinkType(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateLinkTypeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lt, err := h.service.UpdateLinkType(r.Context(), id, LinkTypePatch{
		Title:       req.Title,
		URLTemplate: req.URLTemplate,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.invalidateListings(r)
	httpx.JSON(w, http.StatusOK, lt)
}

func (h *Handler) deleteLinkType(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteLinkType(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.invalidateListings(r)
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidArgument):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("registry request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
