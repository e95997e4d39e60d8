package sales

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

// Handler exposes the sales endpoints.
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
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", httpx.CodeForbidden, "missing caller scope")
		return
	}
	var req CreateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	sale, err := h.service.CreateDirect(r.Context(), scope, req)
	if err != nil {
		h.logger.Warn("create sale failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope, _ := shared.ScopeFromContext(r.Context())
	req := ListSalesRequest{}
	if v := r.URL.Query().Get("franchiseId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", httpx.CodeValidation, "invalid franchiseId")
			return
		}
		req.FranchiseID = id
	}
	if v := r.URL.Query().Get("saleType"); v != "" {
		t := SaleType(v)
		req.Type = &t
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
		h.logger.Error("list sales failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": result, "total": total})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	scope, _ := shared.ScopeFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", httpx.CodeValidation, "invalid id")
		return
	}
	sale, err := h.service.Get(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}
