package transfers

import (
	"context"
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

// Handler exposes the transfer endpoints.
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
	r.Post("/{id}/approve", h.action(h.service.Approve))
	r.Post("/{id}/reject", h.action(h.service.Reject))
	r.Post("/{id}/complete", h.action(h.service.Complete))
	r.Post("/{id}/cancel", h.action(h.service.Cancel))
	r.Post("/import", h.bulk(h.service.Import))
	r.Post("/export", h.bulk(h.service.Export))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", httpx.CodeForbidden, "missing caller scope")
		return
	}
	var req CreateTransferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	transfer, err := h.service.Create(r.Context(), scope, req)
	if err != nil {
		h.logger.Warn("create transfer failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transfer)
}

func (h *Handler) action(fn func(ctx context.Context, scope shared.Scope, id int64) (*Transfer, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		transfer, err := fn(r.Context(), scope, id)
		if err != nil {
			h.logger.Warn("transfer transition failed", slog.Int64("transfer_id", id), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, transfer)
	}
}

func (h *Handler) bulk(fn func(ctx context.Context, scope shared.Scope, rows []BulkMoveRow) []BulkOutcome) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := shared.ScopeFromContext(r.Context())
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", httpx.CodeForbidden, "missing caller scope")
			return
		}
		rows, err := httpx.DecodeJSONOneOrMany[BulkMoveRow](r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if len(rows) == 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", httpx.CodeValidation, "empty movement list")
			return
		}
		outcomes := fn(r.Context(), scope, rows)
		failed := 0
		for _, o := range outcomes {
			if o.Error != "" {
				failed++
			}
		}
		status := http.StatusOK
		if failed == len(outcomes) {
			status = http.StatusUnprocessableEntity
		} else if failed > 0 {
			status = http.StatusMultiStatus
		}
		httpx.JSON(w, status, map[string]any{"results": outcomes, "failed": failed})
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope, _ := shared.ScopeFromContext(r.Context())
	req := ListTransfersRequest{}
	if v := r.URL.Query().Get("franchiseId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", httpx.CodeValidation, "invalid franchiseId")
			return
		}
		req.FranchiseID = id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		st := Status(v)
		if !st.Valid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", httpx.CodeValidation, "unknown status")
			return
		}
		req.Status = &st
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
		h.logger.Error("list transfers failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": result, "total": total})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	scope, _ := shared.ScopeFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", httpx.CodeValidation, "invalid id")
		return
	}
	transfer, err := h.service.Get(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}
