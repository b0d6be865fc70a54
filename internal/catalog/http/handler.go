package cataloghttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vantage-erp/vantage-erp/internal/authz"
	"github.com/vantage-erp/vantage-erp/internal/catalog"
	"github.com/vantage-erp/vantage-erp/internal/platform/httpx"
)

// Handler serves the permission catalog.
type Handler struct {
	authz authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(mw authz.Middleware) *Handler {
	return &Handler{authz: mw}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny("roles.manage", "users.manage"))
		r.Get("/", h.list)
		r.Get("/by-category", h.byCategory)
	})
}

type definitionView struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	defs := catalog.All()
	out := make([]definitionView, 0, len(defs))
	for _, def := range defs {
		out = append(out, toView(def))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

func (h *Handler) byCategory(w http.ResponseWriter, r *http.Request) {
	grouped := catalog.ByCategory()
	out := make([]map[string]any, 0, len(grouped))
	for _, cat := range catalog.Categories() {
		defs := grouped[cat]
		views := make([]definitionView, 0, len(defs))
		for _, def := range defs {
			views = append(views, toView(def))
		}
		out = append(out, map[string]any{"category": string(cat), "permissions": views})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": out})
}

func toView(def catalog.Definition) definitionView {
	return definitionView{ID: def.ID, Label: def.Label, Category: string(def.Category), Description: def.Description}
}
