package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-erp/internal/catalog"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context, includeDeleted bool) ([]Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	ReplacePermissions(ctx context.Context, id string, perms []string, expectedVersion int64) (Role, error)
	SoftDeleteRole(ctx context.Context, id string, expectedVersion int64) error
}

// Service handles role business logic. It performs no audit writes; the
// change coordinator owns the mutation + audit commit path.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns roles ordered by name.
func (s *Service) List(ctx context.Context, includeDeleted bool) ([]Role, error) {
	return s.repo.ListRoles(ctx, includeDeleted)
}

// Get fetches a role by ID.
func (s *Service) Get(ctx context.Context, id string) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// GetByName fetches a role by display name.
func (s *Service) GetByName(ctx context.Context, name string) (Role, error) {
	return s.repo.GetRoleByName(ctx, name)
}

// Create inserts a new role after validating its permission set.
func (s *Service) Create(ctx context.Context, name string, perms []string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("roles: role name required")
	}
	perms = normalizeSet(perms)
	if bad, ok := catalog.Validate(perms); !ok {
		return Role{}, fmt.Errorf("roles: %q: %w", bad, shared.ErrUnknownPermission)
	}
	return s.repo.CreateRole(ctx, Role{ID: uuid.NewString(), Name: name, Permissions: perms})
}

// ReplacePermissions replaces the role's whole permission set. Every id is
// validated against the catalog before any write; an unknown id rejects the
// entire set.
func (s *Service) ReplacePermissions(ctx context.Context, id string, perms []string, expectedVersion int64) (Role, error) {
	perms = normalizeSet(perms)
	if bad, ok := catalog.Validate(perms); !ok {
		return Role{}, fmt.Errorf("roles: %q: %w", bad, shared.ErrUnknownPermission)
	}
	return s.repo.ReplacePermissions(ctx, id, perms, expectedVersion)
}

// SoftDelete marks a role deleted. Staff members still referencing it
// resolve to an empty permission set until reassigned.
func (s *Service) SoftDelete(ctx context.Context, id string, expectedVersion int64) error {
	return s.repo.SoftDeleteRole(ctx, id, expectedVersion)
}

// normalizeSet trims, drops empties and deduplicates while keeping the
// caller's ordering for the remaining ids.
func normalizeSet(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
