package staff

import (
	"context"
	"fmt"

	"github.com/vantage-erp/vantage-erp/internal/catalog"
	"github.com/vantage-erp/vantage-erp/internal/roles"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// RepositoryPort defines data access methods for staff members.
type RepositoryPort interface {
	ListMembers(ctx context.Context) ([]Member, error)
	GetMember(ctx context.Context, id string) (Member, error)
	SetOverride(ctx context.Context, id string, override Override, expectedVersion int64) (Member, error)
}

// RoleLookup resolves roles by stable id, the join key staff records carry.
type RoleLookup interface {
	Get(ctx context.Context, id string) (roles.Role, error)
}

// Service handles staff override business logic.
type Service struct {
	repo  RepositoryPort
	roles RoleLookup
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roleLookup RoleLookup) *Service {
	return &Service{repo: repo, roles: roleLookup}
}

// List returns all staff members ordered by name.
func (s *Service) List(ctx context.Context) ([]Member, error) {
	return s.repo.ListMembers(ctx)
}

// Get fetches a staff member by ID.
func (s *Service) Get(ctx context.Context, id string) (Member, error) {
	return s.repo.GetMember(ctx, id)
}

// SetOverride installs an explicit permission override, or clears it when
// override.Valid is false. Every id is validated against the catalog before
// the write; an unknown id rejects the whole set.
func (s *Service) SetOverride(ctx context.Context, id string, override Override, expectedVersion int64) (Member, error) {
	if override.Valid {
		if bad, ok := catalog.Validate(override.Permissions); !ok {
			return Member{}, fmt.Errorf("staff: %q: %w", bad, shared.ErrUnknownPermission)
		}
	}
	return s.repo.SetOverride(ctx, id, override, expectedVersion)
}

// ResetToRoleDefault installs a point-in-time copy of the member's current
// role matrix as a new override. The member keeps this snapshot even if the
// role changes later; reset again to pick up newer role permissions. Clearing
// the override instead (tracking the role permanently) is SetOverride with an
// invalid Override.
func (s *Service) ResetToRoleDefault(ctx context.Context, id string, expectedVersion int64) (Member, error) {
	member, err := s.repo.GetMember(ctx, id)
	if err != nil {
		return Member{}, err
	}
	role, err := s.roles.Get(ctx, member.RoleID)
	if err != nil {
		return Member{}, fmt.Errorf("staff: role %q: %w", member.RoleID, err)
	}
	snapshot := make([]string, len(role.Permissions))
	copy(snapshot, role.Permissions)
	return s.repo.SetOverride(ctx, id, Override{Permissions: snapshot, Valid: true}, expectedVersion)
}
