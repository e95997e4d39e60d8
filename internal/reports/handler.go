package reports

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stocklane/stocklane/internal/platform/httpx"
	"github.com/stocklane/stocklane/internal/shared"
)

// Handler exposes the reporting endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/sales-summary", h.salesSummary)
	r.Get("/low-stock", h.lowStock)
}

func (h *Handler) salesSummary(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", httpx.CodeForbidden, "missing caller scope")
		return
	}
	franchiseID, _ := strconv.ParseInt(r.URL.Query().Get("franchiseId"), 10, 64)
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now
	if v := r.URL.Query().Get("dateFrom"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", httpx.CodeValidation, "invalid dateFrom")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("dateTo"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", httpx.CodeValidation, "invalid dateTo")
			return
		}
		// Inclusive end of day.
		to = t.Add(24*time.Hour - time.Nanosecond)
	}
	summary, err := h.service.SalesSummary(r.Context(), scope, franchiseID, from, to)
	if err != nil {
		h.logger.Error("sales summary failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", httpx.CodeForbidden, "missing caller scope")
		return
	}
	franchiseID, _ := strconv.ParseInt(r.URL.Query().Get("franchiseId"), 10, 64)
	threshold, _ := strconv.ParseInt(r.URL.Query().Get("threshold"), 10, 64)
	items, err := h.service.LowStock(r.Context(), scope, franchiseID, threshold)
	if err != nil {
		h.logger.Error("low stock report failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}
