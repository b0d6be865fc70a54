package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/vantage-erp/vantage-erp/internal/audit"
	"github.com/vantage-erp/vantage-erp/internal/authz"
	"github.com/vantage-erp/vantage-erp/internal/platform/httpx"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

const rateLimit = 30
const rateWindow = time.Minute

// LedgerService is the query surface for the privilege change ledger.
type LedgerService interface {
	Query(ctx context.Context, filters audit.QueryFilters) ([]audit.Entry, error)
}

// Handler serves the audit ledger query endpoint.
type Handler struct {
	logger  *slog.Logger
	service LedgerService
	authz   authz.Middleware
}

// NewHandler constructs an audit HTTP handler.
func NewHandler(logger *slog.Logger, service LedgerService, mw authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: mw}
}

// MountRoutes registers the audit query endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny("audit.view"))
		r.Use(limiter)
		r.Get("/", h.query)
	})
}

type entryView struct {
	ID            string    `json:"id"`
	AdminID       string    `json:"admin_id"`
	AdminName     string    `json:"admin_name"`
	TargetName    string    `json:"target_user_name"`
	ActionType    string    `json:"action_type"`
	ChangeDetails string    `json:"change_details"`
	CreatedAt     time.Time `json:"created_at"`
}

// query reads the bounded recent window and filters it. The response carries
// the window size so callers know matches older than the window are not
// included.
func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	filters := audit.QueryFilters{
		AdminNameContains:  strings.TrimSpace(r.URL.Query().Get("admin")),
		TargetNameContains: strings.TrimSpace(r.URL.Query().Get("target")),
		ActionTypeContains: strings.TrimSpace(r.URL.Query().Get("action")),
		Sort:               audit.SortDescending,
	}
	if strings.EqualFold(r.URL.Query().Get("sort"), "asc") {
		filters.Sort = audit.SortAscending
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "limit must be a positive integer")
			return
		}
		filters.Limit = limit
	}

	entries, err := h.service.Query(r.Context(), filters)
	if err != nil {
		h.logger.Error("query audit ledger", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]entryView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entryView{
			ID:            entry.ID,
			AdminID:       entry.AdminID,
			AdminName:     entry.AdminName,
			TargetName:    entry.TargetName,
			ActionType:    string(entry.ActionType),
			ChangeDetails: entry.ChangeDetails,
			CreatedAt:     entry.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries":     out,
		"window_size": audit.DefaultWindow,
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		return "actor:" + actor.ID, nil
	}
	return httprate.KeyByIP(r)
}
