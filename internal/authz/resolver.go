// Package authz computes effective permissions. It is the only component any
// access-control check consults.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/vantage-erp/vantage-erp/internal/roles"
	"github.com/vantage-erp/vantage-erp/internal/shared"
	"github.com/vantage-erp/vantage-erp/internal/staff"
)

// Effective is the pure resolution rule: an override wins whenever present,
// including the empty override, which denies everything. Without an override
// the member's role decides; a missing or soft-deleted role resolves to the
// empty set. Fail-closed: a dangling role reference must never grant access.
func Effective(member staff.Member, role roles.Role, roleFound bool) []string {
	if member.Override.Valid {
		out := make([]string, len(member.Override.Permissions))
		copy(out, member.Override.Permissions)
		return out
	}
	if !roleFound || role.IsDeleted {
		return []string{}
	}
	out := make([]string, len(role.Permissions))
	copy(out, role.Permissions)
	return out
}

// MemberLookup fetches staff records.
type MemberLookup interface {
	Get(ctx context.Context, id string) (staff.Member, error)
}

// RoleLookup resolves roles by stable id.
type RoleLookup interface {
	Get(ctx context.Context, id string) (roles.Role, error)
}

// Service resolves effective permissions on demand. Nothing is cached, so a
// role matrix edit is visible to every member without an override on the next
// resolution.
type Service struct {
	members MemberLookup
	roles   RoleLookup
}

// NewService builds Service instance.
func NewService(members MemberLookup, roleLookup RoleLookup) *Service {
	return &Service{members: members, roles: roleLookup}
}

// EffectivePermissions returns the permission set authorizing the member's
// actions. The only error path is a missing member or store failure; a
// missing role is absorbed into the empty set.
func (s *Service) EffectivePermissions(ctx context.Context, memberID string) ([]string, error) {
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member.Override.Valid {
		return Effective(member, roles.Role{}, false), nil
	}
	if member.RoleID == "" {
		return Effective(member, roles.Role{}, false), nil
	}
	role, err := s.roles.Get(ctx, member.RoleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Effective(member, roles.Role{}, false), nil
		}
		return nil, fmt.Errorf("authz: resolve role: %w", err)
	}
	return Effective(member, role, true), nil
}

// Has reports whether the member's effective set grants the permission.
func (s *Service) Has(ctx context.Context, memberID, permission string) (bool, error) {
	granted, err := s.EffectivePermissions(ctx, memberID)
	if err != nil {
		return false, err
	}
	for _, p := range granted {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}
