package orders

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stocklane/stocklane/internal/platform/httpx"
	"github.com/stocklane/stocklane/internal/shared"
)

// Handler exposes the order endpoints.
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
	r.Put("/{id}/items", h.updateItems)
	r.Patch("/{id}/status", h.changeStatus)
	r.Delete("/{id}", h.remove)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", httpx.CodeForbidden, "missing caller scope")
		return
	}
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	order, err := h.service.Create(r.Context(), scope, req)
	if err != nil {
		h.logger.Warn("create order failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	scope, _ := shared.ScopeFromContext(r.Context())
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ChangeStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	order, err := h.service.ChangeStatus(r.Context(), scope, id, req.OrderStatus)
	if err != nil {
		h.logger.Warn("status change failed",
			slog.Int64("order_id", id),
			slog.String("to", string(req.OrderStatus)),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) updateItems(w http.ResponseWriter, r *http.Request) {
	scope, _ := shared.ScopeFromContext(r.Context())
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateItemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	order, err := h.service.UpdateItems(r.Context(), scope, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	scope, _ := shared.ScopeFromContext(r.Context())
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

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	scope, _ := shared.ScopeFromContext(r.Context())
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope, _ := shared.ScopeFromContext(r.Context())
	req := ListOrdersRequest{}
	if v := r.URL.Query().Get("franchiseId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", httpx.CodeValidation, "invalid franchiseId")
			return
		}
		req.FranchiseID = id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := Status(v)
		if !status.Valid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", httpx.CodeValidation, "unknown status")
			return
		}
		req.Status = &status
	}
	if v := r.URL.Query().Get("dateFrom"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			req.DateFrom = &t
		}
	}
	if v := r.URL.Query().Get("dateTo"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			req.DateTo = &t
		}
	}
	req.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	req.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	result, total, err := h.service.List(r.Context(), scope, req)
	if err != nil {
		h.logger.Error("list orders failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": result, "total": total})
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", shared.ErrValidation)
	}
	return id, nil
}
