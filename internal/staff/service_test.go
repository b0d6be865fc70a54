package staff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage-erp/vantage-erp/internal/roles"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

type mockRepository struct {
	members map[string]*Member
	setOps  int
}

func newMockRepository() *mockRepository {
	return &mockRepository{members: make(map[string]*Member)}
}

func (m *mockRepository) add(member Member) {
	stored := member
	m.members[member.ID] = &stored
}

func (m *mockRepository) ListMembers(ctx context.Context) ([]Member, error) {
	var out []Member
	for _, member := range m.members {
		out = append(out, *member)
	}
	return out, nil
}

func (m *mockRepository) GetMember(ctx context.Context, id string) (Member, error) {
	member, ok := m.members[id]
	if !ok {
		return Member{}, shared.ErrNotFound
	}
	return *member, nil
}

func (m *mockRepository) SetOverride(ctx context.Context, id string, override Override, expectedVersion int64) (Member, error) {
	m.setOps++
	member, ok := m.members[id]
	if !ok {
		return Member{}, shared.ErrNotFound
	}
	if member.Version != expectedVersion {
		return Member{}, shared.ErrConflict
	}
	member.Override = override
	member.Version++
	return *member, nil
}

type mockRoleLookup struct {
	roles map[string]roles.Role
}

func (m *mockRoleLookup) Get(ctx context.Context, id string) (roles.Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return roles.Role{}, shared.ErrNotFound
	}
	return role, nil
}

func TestSetOverrideValidatesAgainstCatalog(t *testing.T) {
	repo := newMockRepository()
	repo.add(Member{ID: "u1", Name: "Carla", RoleID: "r1", RoleName: "Financeiro", Version: 1})
	svc := NewService(repo, &mockRoleLookup{})

	_, err := svc.SetOverride(context.Background(), "u1", Override{Permissions: []string{"catalog.view", "no.such"}, Valid: true}, 1)
	require.ErrorIs(t, err, shared.ErrUnknownPermission)
	assert.Zero(t, repo.setOps, "validation failure must not reach the store")
}

func TestSetOverrideEmptySetIsValidState(t *testing.T) {
	repo := newMockRepository()
	repo.add(Member{ID: "u1", Name: "Carla", RoleID: "r1", RoleName: "Financeiro", Version: 1})
	svc := NewService(repo, &mockRoleLookup{})

	member, err := svc.SetOverride(context.Background(), "u1", Override{Permissions: []string{}, Valid: true}, 1)
	require.NoError(t, err)
	assert.True(t, member.Override.Valid, "empty-but-present is a distinct state")
	assert.Empty(t, member.Override.Permissions)
}

func TestSetOverrideClear(t *testing.T) {
	repo := newMockRepository()
	repo.add(Member{ID: "u1", Name: "Carla", RoleID: "r1", RoleName: "Financeiro", Override: Override{Permissions: []string{"catalog.view"}, Valid: true}, Version: 2})
	svc := NewService(repo, &mockRoleLookup{})

	member, err := svc.SetOverride(context.Background(), "u1", Override{}, 2)
	require.NoError(t, err)
	assert.False(t, member.Override.Valid, "clearing reverts the member to role defaults")
}

func TestResetToRoleDefaultSnapshotsNotLinks(t *testing.T) {
	repo := newMockRepository()
	repo.add(Member{ID: "u1", Name: "Bruno", RoleID: "r1", RoleName: "Financeiro", Version: 1})
	lookup := &mockRoleLookup{roles: map[string]roles.Role{
		"r1": {ID: "r1", Name: "Financeiro", Permissions: []string{"finance.view", "finance.manage"}, Version: 1},
	}}
	svc := NewService(repo, lookup)

	member, err := svc.ResetToRoleDefault(context.Background(), "u1", 1)
	require.NoError(t, err)
	require.True(t, member.Override.Valid, "reset installs an override, it does not clear one")
	assert.Equal(t, []string{"finance.view", "finance.manage"}, member.Override.Permissions)

	// The role's matrix changes afterwards; the snapshot must not follow.
	role := lookup.roles["r1"]
	role.Permissions = append(role.Permissions, "hr.manage")
	lookup.roles["r1"] = role

	current, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"finance.view", "finance.manage"}, current.Override.Permissions)
}

func TestResetToRoleDefaultMissingRole(t *testing.T) {
	repo := newMockRepository()
	repo.add(Member{ID: "u1", Name: "Bruno", RoleID: "gone", RoleName: "Extinto", Version: 1})
	svc := NewService(repo, &mockRoleLookup{})

	_, err := svc.ResetToRoleDefault(context.Background(), "u1", 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
