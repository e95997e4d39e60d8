package franchises

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stocklane/stocklane/internal/platform/httpx"
	"github.com/stocklane/stocklane/internal/shared"
)

// Handler exposes the franchise endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler creates the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", httpx.CodeForbidden, "missing caller scope")
		return
	}
	var form FranchiseForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	franchise, err := h.service.Create(r.Context(), scope, form)
	if err != nil {
		h.logger.Warn("create franchise failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, franchise)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", httpx.CodeForbidden, "missing caller scope")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", httpx.CodeValidation, "invalid id")
		return
	}
	var form FranchiseForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	franchise, err := h.service.Update(r.Context(), scope, id, form)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, franchise)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list franchises failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"franchises": result})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", httpx.CodeValidation, "invalid id")
		return
	}
	franchise, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, franchise)
}
