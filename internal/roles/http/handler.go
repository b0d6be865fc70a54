package roleshttp

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
	"github.com/vantage-erp/vantage-erp/internal/roles"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// ReadService is the read surface the handler needs.
type ReadService interface {
	List(ctx context.Context, includeDeleted bool) ([]roles.Role, error)
	Get(ctx context.Context, id string) (roles.Role, error)
}

// Editor drives all role mutations so every change lands in the audit
// ledger. Handlers never call the repository directly.
type Editor interface {
	BeginRoleEdit(ctx context.Context, roleID string) (*grants.Session, error)
	CreateRole(ctx context.Context, name string, perms []string) (roles.Role, error)
	SoftDeleteRole(ctx context.Context, roleID string, expectedVersion int64) error
}

// Handler wires role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ReadService
	editor    Editor
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service ReadService, editor Editor, mw authz.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		editor:    editor,
		authz:     mw,
		validator: validator.New(),
	}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny("roles.manage"))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{roleID}", h.get)
		r.Put("/{roleID}/permissions", h.replacePermissions)
		r.Delete("/{roleID}", h.softDelete)
	})
}

type roleView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	IsDeleted   bool      `json:"is_deleted"`
	Permissions []string  `json:"permissions"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toView(role roles.Role) roleView {
	perms := role.Permissions
	if perms == nil {
		perms = []string{}
	}
	return roleView{
		ID:          role.ID,
		Name:        role.Name,
		IsDeleted:   role.IsDeleted,
		Permissions: perms,
		Version:     role.Version,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	roleList, err := h.service.List(r.Context(), includeDeleted)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleView, 0, len(roleList))
	for _, role := range roleList {
		out = append(out, toView(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.Get(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(role))
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=80"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.editor.CreateRole(r.Context(), req.Name, req.Permissions)
	if err != nil {
		h.logger.Error("create role", slog.String("name", req.Name), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toView(role))
}

type replacePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required"`
	Version     int64    `json:"version" validate:"required,min=1"`
}

func (h *Handler) replacePermissions(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")
	var req replacePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	session, err := h.editor.BeginRoleEdit(r.Context(), roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if session.Version() != req.Version {
		httpx.RespondError(w, fmt.Errorf("roles: role changed since read: %w", shared.ErrConflict))
		return
	}
	if err := applyDesiredSet(session, req.Permissions); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := session.Commit(r.Context()); err != nil {
		h.logger.Error("commit role matrix", slog.String("role", roleID), slog.String("reason", string(session.Reason())), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.Get(r.Context(), roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(role))
}

type softDeleteRequest struct {
	Version int64 `json:"version" validate:"required,min=1"`
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")
	var req softDeleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.editor.SoftDeleteRole(r.Context(), roleID, req.Version); err != nil {
		h.logger.Error("soft delete role", slog.String("role", roleID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// applyDesiredSet walks the working copy toward the requested set with
// individual toggles so unknown ids are rejected before anything persists.
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
