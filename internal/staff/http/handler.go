package staffhttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vantage-erp/vantage-erp/internal/authz"
	"github.com/vantage-erp/vantage-erp/internal/grants"
	"github.com/vantage-erp/vantage-erp/internal/platform/httpx"
	"github.com/vantage-erp/vantage-erp/internal/shared"
	"github.com/vantage-erp/vantage-erp/internal/staff"
)

// ReadService is the staff read surface.
type ReadService interface {
	List(ctx context.Context) ([]staff.Member, error)
	Get(ctx context.Context, id string) (staff.Member, error)
}

// Resolver supplies effective permission sets for display.
type Resolver interface {
	EffectivePermissions(ctx context.Context, memberID string) ([]string, error)
}

// Editor drives all override mutations through the change coordinator.
type Editor interface {
	BeginOverrideEdit(ctx context.Context, memberID string) (*grants.Session, error)
	ClearOverride(ctx context.Context, memberID string, expectedVersion int64) (staff.Member, error)
	ResetOverrideToRole(ctx context.Context, memberID string, expectedVersion int64) (staff.Member, error)
}

// Handler wires staff override endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ReadService
	resolver  Resolver
	editor    Editor
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service ReadService, resolver Resolver, editor Editor, mw authz.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		resolver:  resolver,
		editor:    editor,
		authz:     mw,
		validator: validator.New(),
	}
}

// MountRoutes registers staff routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny("users.view", "users.manage"))
		r.Get("/", h.list)
		r.Get("/{memberID}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny("users.manage"))
		r.Put("/{memberID}/override", h.setOverride)
		r.Delete("/{memberID}/override", h.clearOverride)
		r.Post("/{memberID}/override/reset", h.resetOverride)
	})
}

type memberView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	RoleID      string    `json:"role_id"`
	Role        string    `json:"role"`
	Permissions *[]string `json:"permissions"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type memberDetailView struct {
	memberView
	EffectivePermissions []string `json:"effective_permissions"`
}

// toView serializes the override as a nullable array: null means the member
// tracks its role, a concrete array (empty included) is an explicit override.
func toView(member staff.Member) memberView {
	view := memberView{
		ID:        member.ID,
		Name:      member.Name,
		RoleID:    member.RoleID,
		Role:      member.RoleName,
		Version:   member.Version,
		CreatedAt: member.CreatedAt,
		UpdatedAt: member.UpdatedAt,
	}
	if member.Override.Valid {
		set := member.Override.Permissions
		if set == nil {
			set = []string{}
		}
		view.Permissions = &set
	}
	return view
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list staff", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]memberView, 0, len(members))
	for _, member := range members {
		out = append(out, toView(member))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"staff": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")
	member, err := h.service.Get(r.Context(), memberID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	effective, err := h.resolver.EffectivePermissions(r.Context(), memberID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, memberDetailView{memberView: toView(member), EffectivePermissions: effective})
}

type setOverrideRequest struct {
	Permissions []string `json:"permissions" validate:"required"`
	Version     int64    `json:"version" validate:"required,min=1"`
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")
	var req setOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	session, err := h.editor.BeginOverrideEdit(r.Context(), memberID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if session.Version() != req.Version {
		httpx.RespondError(w, fmt.Errorf("staff: member changed since read: %w", shared.ErrConflict))
		return
	}
	if err := applyDesiredSet(session, req.Permissions); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := session.Commit(r.Context()); err != nil {
		h.logger.Error("commit override", slog.String("member", memberID), slog.String("reason", string(session.Reason())), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.respondMember(w, r, memberID)
}

type versionRequest struct {
	Version int64 `json:"version" validate:"required,min=1"`
}

func (h *Handler) clearOverride(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")
	var req versionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	member, err := h.editor.ClearOverride(r.Context(), memberID, req.Version)
	if err != nil {
		h.logger.Error("clear override", slog.String("member", memberID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(member))
}

func (h *Handler) resetOverride(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")
	var req versionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	member, err := h.editor.ResetOverrideToRole(r.Context(), memberID, req.Version)
	if err != nil {
		h.logger.Error("reset override", slog.String("member", memberID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(member))
}

func (h *Handler) respondMember(w http.ResponseWriter, r *http.Request, memberID string) {
	member, err := h.service.Get(r.Context(), memberID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(member))
}

func applyDesiredSet(session *grants.Session, desired []string) error {
	want := make(map[string]struct{}, len(desired))
	for _, id := range desired {
		want[id] = struct{}{}
	}
	for _, id := range session.Working() {
		if _, ok := want[id]; !ok {
			if err := session.Toggle(id); err != nil {
				return err
			}
		}
	}
	current := make(map[string]struct{})
	for _, id := range session.Working() {
		current[id] = struct{}{}
	}
	for id := range want {
		if _, ok := current[id]; !ok {
			if err := session.Toggle(id); err != nil {
				return err
			}
		}
	}
	return nil
}
