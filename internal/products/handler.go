package products

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

// Handler exposes the catalogue endpoints.
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
	r.Post("/{id}/adjust", h.adjust)
	r.Delete("/{id}", h.delete)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", httpx.CodeForbidden, "missing caller scope")
		return
	}
	var req CreateProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	product, err := h.service.Create(r.Context(), scope, req)
	if err != nil {
		h.logger.Warn("create product failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", httpx.CodeForbidden, "missing caller scope")
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	product, err := h.service.Update(r.Context(), scope, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", httpx.CodeForbidden, "missing caller scope")
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req AdjustStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	levels, err := h.service.Adjust(r.Context(), scope, id, req)
	if err != nil {
		h.logger.Warn("adjust stock failed", slog.Int64("product_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, levels)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", httpx.CodeForbidden, "missing caller scope")
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), scope, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope, _ := shared.ScopeFromContext(r.Context())
	req := ListProductsRequest{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
	}
	if v := r.URL.Query().Get("franchiseId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", httpx.CodeValidation, "invalid franchiseId")
			return
		}
		req.FranchiseID = id
	}
	if v := r.URL.Query().Get("isActive"); v != "" {
		active := v == "true"
		req.IsActive = &active
	}
	if v := r.URL.Query().Get("lowStock"); v != "" {
		if threshold, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.LowStock = &threshold
		}
	}
	req.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	req.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	result, total, err := h.service.List(r.Context(), scope, req)
	if err != nil {
		h.logger.Error("list products failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	page := 1
	if req.Limit > 0 {
		page = req.Offset/req.Limit + 1
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"products":   result,
		"total":      total,
		"pagination": shared.NewPagination(page, req.Limit, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	scope, _ := shared.ScopeFromContext(r.Context())
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.Get(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", shared.ErrValidation)
	}
	return id, nil
}
