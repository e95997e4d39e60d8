package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stocklane/stocklane/internal/auth"
	"github.com/stocklane/stocklane/internal/franchises"
	"github.com/stocklane/stocklane/internal/observability"
	"github.com/stocklane/stocklane/internal/orders"
	"github.com/stocklane/stocklane/internal/products"
	"github.com/stocklane/stocklane/internal/reports"
	"github.com/stocklane/stocklane/internal/sales"
	"github.com/stocklane/stocklane/internal/transfers"
	"github.com/stocklane/stocklane/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	AuthService       *auth.Service
	AuthHandler       *auth.Handler
	ProductsHandler   *products.Handler
	FranchisesHandler *franchises.Handler
	OrdersHandler     *orders.Handler
	TransfersHandler  *transfers.Handler
	SalesHandler      *sales.Handler
	ReportsHandler    *reports.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with StockLane defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(params.AuthService, params.Logger))

		if params.ProductsHandler != nil {
			r.Route("/products", params.ProductsHandler.MountRoutes)
		}
		if params.FranchisesHandler != nil {
			r.Route("/franchises", params.FranchisesHandler.MountRoutes)
		}
		if params.OrdersHandler != nil {
			r.Route("/orders", params.OrdersHandler.MountRoutes)
		}
		if params.TransfersHandler != nil {
			r.Route("/transfers", params.TransfersHandler.MountRoutes)
		}
		if params.SalesHandler != nil {
			r.Route("/sales", params.SalesHandler.MountRoutes)
		}
		if params.ReportsHandler != nil {
			r.Route("/reports", params.ReportsHandler.MountRoutes)
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
