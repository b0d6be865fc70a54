package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	audithttp "github.com/vantage-erp/vantage-erp/internal/audit/http"
	cataloghttp "github.com/vantage-erp/vantage-erp/internal/catalog/http"
	"github.com/vantage-erp/vantage-erp/internal/observability"
	"github.com/vantage-erp/vantage-erp/internal/platform/httpx"
	roleshttp "github.com/vantage-erp/vantage-erp/internal/roles/http"
	staffhttp "github.com/vantage-erp/vantage-erp/internal/staff/http"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Metrics        *observability.Metrics
	CatalogHandler *cataloghttp.Handler
	RolesHandler   *roleshttp.Handler
	StaffHandler   *staffhttp.Handler
	AuditHandler   *audithttp.Handler
}

// NewRouter builds the chi router with the full middleware chain.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: params.Logger, Config: params.Config}) {
		r.Use(mw)
	}
	r.Use(params.Metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/permissions", params.CatalogHandler.MountRoutes)
		r.Route("/roles", params.RolesHandler.MountRoutes)
		r.Route("/staff", params.StaffHandler.MountRoutes)
		r.Route("/audit", params.AuditHandler.MountRoutes)
	})

	return r
}
