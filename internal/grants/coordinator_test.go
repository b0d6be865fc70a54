package grants

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage-erp/vantage-erp/internal/audit"
	"github.com/vantage-erp/vantage-erp/internal/events"
	"github.com/vantage-erp/vantage-erp/internal/roles"
	"github.com/vantage-erp/vantage-erp/internal/shared"
	"github.com/vantage-erp/vantage-erp/internal/staff"
)

type fakeRoleStore struct {
	byID       map[string]*roles.Role
	replaceErr error
}

func newFakeRoleStore(fixtures ...roles.Role) *fakeRoleStore {
	store := &fakeRoleStore{byID: make(map[string]*roles.Role)}
	for _, role := range fixtures {
		stored := role
		store.byID[role.ID] = &stored
	}
	return store
}

func (f *fakeRoleStore) Get(ctx context.Context, id string) (roles.Role, error) {
	role, ok := f.byID[id]
	if !ok {
		return roles.Role{}, shared.ErrNotFound
	}
	return *role, nil
}

func (f *fakeRoleStore) Create(ctx context.Context, name string, perms []string) (roles.Role, error) {
	role := roles.Role{ID: "role-" + name, Name: name, Permissions: perms, Version: 1}
	f.byID[role.ID] = &role
	return role, nil
}

func (f *fakeRoleStore) ReplacePermissions(ctx context.Context, id string, perms []string, expectedVersion int64) (roles.Role, error) {
	if f.replaceErr != nil {
		return roles.Role{}, f.replaceErr
	}
	role, ok := f.byID[id]
	if !ok {
		return roles.Role{}, shared.ErrNotFound
	}
	if role.Version != expectedVersion {
		return roles.Role{}, shared.ErrConflict
	}
	role.Permissions = perms
	role.Version++
	return *role, nil
}

func (f *fakeRoleStore) SoftDelete(ctx context.Context, id string, expectedVersion int64) error {
	role, ok := f.byID[id]
	if !ok {
		return shared.ErrNotFound
	}
	if role.Version != expectedVersion {
		return shared.ErrConflict
	}
	role.IsDeleted = true
	role.Version++
	return nil
}

type fakeStaffStore struct {
	byID map[string]*staff.Member
}

func newFakeStaffStore(fixtures ...staff.Member) *fakeStaffStore {
	store := &fakeStaffStore{byID: make(map[string]*staff.Member)}
	for _, member := range fixtures {
		stored := member
		store.byID[member.ID] = &stored
	}
	return store
}

func (f *fakeStaffStore) Get(ctx context.Context, id string) (staff.Member, error) {
	member, ok := f.byID[id]
	if !ok {
		return staff.Member{}, shared.ErrNotFound
	}
	return *member, nil
}

func (f *fakeStaffStore) SetOverride(ctx context.Context, id string, override staff.Override, expectedVersion int64) (staff.Member, error) {
	member, ok := f.byID[id]
	if !ok {
		return staff.Member{}, shared.ErrNotFound
	}
	if member.Version != expectedVersion {
		return staff.Member{}, shared.ErrConflict
	}
	member.Override = override
	member.Version++
	return *member, nil
}

func (f *fakeStaffStore) ResetToRoleDefault(ctx context.Context, id string, expectedVersion int64) (staff.Member, error) {
	return f.SetOverride(ctx, id, staff.Override{Permissions: []string{"finance.view"}, Valid: true}, expectedVersion)
}

type fakeResolver struct {
	perms []string
}

func (f *fakeResolver) EffectivePermissions(ctx context.Context, memberID string) ([]string, error) {
	return append([]string(nil), f.perms...), nil
}

type fakeAudit struct {
	entries []audit.Entry
	failN   int
}

func (f *fakeAudit) Append(ctx context.Context, entry audit.Entry) error {
	if f.failN > 0 {
		f.failN--
		return errors.New("ledger unavailable")
	}
	f.entries = append(f.entries, entry)
	return nil
}

type fakeBus struct {
	events []events.PermissionsChanged
}

func (f *fakeBus) PublishPermissionsChanged(ctx context.Context, event events.PermissionsChanged) error {
	f.events = append(f.events, event)
	return nil
}

func actorContext() context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{ID: "admin-1", Name: "Ana"})
}

func testCoordinator(roleStore RoleStore, staffStore StaffStore, ledger AuditAppender, bus Publisher) *Coordinator {
	return NewCoordinator(roleStore, staffStore, &fakeResolver{}, ledger, bus, slog.Default())
}

func TestToggleIsItsOwnInverse(t *testing.T) {
	roleStore := newFakeRoleStore(roles.Role{ID: "r1", Name: "Financeiro", Permissions: []string{"finance.view"}, Version: 1})
	c := testCoordinator(roleStore, newFakeStaffStore(), &fakeAudit{}, nil)

	session, err := c.BeginRoleEdit(context.Background(), "r1")
	require.NoError(t, err)

	require.NoError(t, session.Toggle("finance.manage"))
	require.NoError(t, session.Toggle("finance.manage"))
	assert.Equal(t, []string{"finance.view"}, session.Working())

	require.NoError(t, session.Toggle("finance.view"))
	require.NoError(t, session.Toggle("finance.view"))
	assert.Equal(t, []string{"finance.view"}, session.Working())
}

func TestToggleRejectsUnknownInsert(t *testing.T) {
	roleStore := newFakeRoleStore(roles.Role{ID: "r1", Name: "Financeiro", Permissions: []string{"finance.view"}, Version: 1})
	c := testCoordinator(roleStore, newFakeStaffStore(), &fakeAudit{}, nil)

	session, err := c.BeginRoleEdit(context.Background(), "r1")
	require.NoError(t, err)

	err = session.Toggle("no.such.permission")
	require.ErrorIs(t, err, shared.ErrUnknownPermission)
	assert.Equal(t, []string{"finance.view"}, session.Working())
}

func TestToggleAllowsRemovingStaleGrant(t *testing.T) {
	// The stored matrix may carry ids dropped from the catalog; removal must
	// still work so they can be cleaned up.
	roleStore := newFakeRoleStore(roles.Role{ID: "r1", Name: "Legado", Permissions: []string{"retired.permission"}, Version: 1})
	c := testCoordinator(roleStore, newFakeStaffStore(), &fakeAudit{}, nil)

	session, err := c.BeginRoleEdit(context.Background(), "r1")
	require.NoError(t, err)

	require.NoError(t, session.Toggle("retired.permission"))
	assert.Empty(t, session.Working())
}

func TestCommitRoleEdit(t *testing.T) {
	roleStore := newFakeRoleStore(roles.Role{ID: "r1", Name: "Financeiro", Permissions: []string{"finance.view"}, Version: 3})
	ledger := &fakeAudit{}
	bus := &fakeBus{}
	c := testCoordinator(roleStore, newFakeStaffStore(), ledger, bus)

	session, err := c.BeginRoleEdit(context.Background(), "r1")
	require.NoError(t, err)
	require.NoError(t, session.Toggle("finance.manage"))

	require.NoError(t, session.Commit(actorContext()))

	assert.Equal(t, StateCommitted, session.State())
	assert.Equal(t, int64(4), session.Version())

	stored := roleStore.byID["r1"]
	assert.Equal(t, []string{"finance.manage", "finance.view"}, stored.Permissions)
	assert.Equal(t, int64(4), stored.Version)

	require.Len(t, ledger.entries, 1)
	entry := ledger.entries[0]
	assert.Equal(t, audit.ActionRoleMatrixSync, entry.ActionType)
	assert.Equal(t, "Ana", entry.AdminName)
	assert.Equal(t, "Financeiro", entry.TargetName)

	require.Len(t, bus.events, 1)
	assert.Equal(t, events.ScopeRole, bus.events[0].Scope)
	assert.Equal(t, "r1", bus.events[0].TargetID)
}

func TestCommitOverrideEdit(t *testing.T) {
	staffStore := newFakeStaffStore(staff.Member{ID: "u1", Name: "Bruno", RoleName: "Financeiro", Version: 1})
	ledger := &fakeAudit{}
	bus := &fakeBus{}
	c := NewCoordinator(newFakeRoleStore(), staffStore, &fakeResolver{perms: []string{"finance.view"}}, ledger, bus, slog.Default())

	session, err := c.BeginOverrideEdit(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"finance.view"}, session.Working(), "no override starts from the effective set")

	require.NoError(t, session.Toggle("catalog.view"))
	require.NoError(t, session.Commit(actorContext()))

	stored := staffStore.byID["u1"]
	require.True(t, stored.Override.Valid, "committing an override edit always installs an override")
	assert.Equal(t, []string{"catalog.view", "finance.view"}, stored.Override.Permissions)

	require.Len(t, ledger.entries, 1)
	assert.Equal(t, audit.ActionUserOverrideSync, ledger.entries[0].ActionType)
	require.Len(t, bus.events, 1)
	assert.Equal(t, events.ScopeStaff, bus.events[0].Scope)
}

func TestCommitEmptyWorkingCopyDeniesAll(t *testing.T) {
	staffStore := newFakeStaffStore(staff.Member{ID: "u1", Name: "Bruno", RoleName: "Financeiro", Version: 1})
	c := NewCoordinator(newFakeRoleStore(), staffStore, &fakeResolver{perms: []string{"finance.view"}}, &fakeAudit{}, nil, slog.Default())

	session, err := c.BeginOverrideEdit(context.Background(), "u1")
	require.NoError(t, err)
	require.NoError(t, session.Toggle("finance.view"))
	require.NoError(t, session.Commit(actorContext()))

	stored := staffStore.byID["u1"]
	require.True(t, stored.Override.Valid)
	assert.Empty(t, stored.Override.Permissions, "present-but-empty override is a deny-all state")
}

func TestCommitVersionConflict(t *testing.T) {
	roleStore := newFakeRoleStore(roles.Role{ID: "r1", Name: "Financeiro", Permissions: []string{"finance.view"}, Version: 1})
	ledger := &fakeAudit{}
	c := testCoordinator(roleStore, newFakeStaffStore(), ledger, nil)

	session, err := c.BeginRoleEdit(context.Background(), "r1")
	require.NoError(t, err)
	require.NoError(t, session.Toggle("finance.manage"))

	// A concurrent writer lands first.
	_, err = roleStore.ReplacePermissions(context.Background(), "r1", []string{"finance.view", "hr.view"}, 1)
	require.NoError(t, err)

	err = session.Commit(actorContext())
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, StateFailed, session.State())
	assert.Equal(t, FailureConflict, session.Reason())
	assert.Empty(t, ledger.entries, "no audit entry when nothing was written")
	assert.Equal(t, []string{"finance.manage", "finance.view"}, session.Working(), "working copy survives for inspection")

	// The concurrent write is untouched.
	assert.Equal(t, []string{"finance.view", "hr.view"}, roleStore.byID["r1"].Permissions)
}

func TestCommitTargetMissing(t *testing.T) {
	roleStore := newFakeRoleStore(roles.Role{ID: "r1", Name: "Financeiro", Permissions: []string{"finance.view"}, Version: 1})
	c := testCoordinator(roleStore, newFakeStaffStore(), &fakeAudit{}, nil)

	session, err := c.BeginRoleEdit(context.Background(), "r1")
	require.NoError(t, err)
	delete(roleStore.byID, "r1")

	err = session.Commit(actorContext())
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, FailureTargetMissing, session.Reason())
}

func TestCommitStoreWriteFailure(t *testing.T) {
	roleStore := newFakeRoleStore(roles.Role{ID: "r1", Name: "Financeiro", Permissions: []string{"finance.view"}, Version: 1})
	roleStore.replaceErr = errors.New("connection reset")
	ledger := &fakeAudit{}
	c := testCoordinator(roleStore, newFakeStaffStore(), ledger, nil)

	session, err := c.BeginRoleEdit(context.Background(), "r1")
	require.NoError(t, err)

	err = session.Commit(actorContext())
	require.Error(t, err)
	assert.Equal(t, StateFailed, session.State())
	assert.Equal(t, FailureStoreWrite, session.Reason())
	assert.Empty(t, ledger.entries)
}

func TestCommitAuditWriteFailedThenRetry(t *testing.T) {
	roleStore := newFakeRoleStore(roles.Role{ID: "r1", Name: "Financeiro", Permissions: []string{"finance.view"}, Version: 1})
	ledger := &fakeAudit{failN: 1}
	bus := &fakeBus{}
	c := testCoordinator(roleStore, newFakeStaffStore(), ledger, bus)

	session, err := c.BeginRoleEdit(context.Background(), "r1")
	require.NoError(t, err)
	require.NoError(t, session.Toggle("finance.manage"))

	err = session.Commit(actorContext())
	require.ErrorIs(t, err, shared.ErrAuditWriteFailed)
	assert.Equal(t, StateFailed, session.State())
	assert.Equal(t, FailureAuditWrite, session.Reason())

	// The mutation itself is live despite the failed ledger write.
	assert.Equal(t, []string{"finance.manage", "finance.view"}, roleStore.byID["r1"].Permissions)
	assert.Empty(t, ledger.entries)
	assert.Empty(t, bus.events, "no announcement until the ledger entry lands")

	// Retrying re-applies the identical set and completes the ledger write.
	require.NoError(t, session.Commit(actorContext()))
	assert.Equal(t, StateCommitted, session.State())
	assert.Equal(t, []string{"finance.manage", "finance.view"}, roleStore.byID["r1"].Permissions)
	require.Len(t, ledger.entries, 1)
	assert.Equal(t, audit.ActionRoleMatrixSync, ledger.entries[0].ActionType)
	require.Len(t, bus.events, 1)
}

func TestCommitRequiresActor(t *testing.T) {
	roleStore := newFakeRoleStore(roles.Role{ID: "r1", Name: "Financeiro", Permissions: []string{"finance.view"}, Version: 1})
	c := testCoordinator(roleStore, newFakeStaffStore(), &fakeAudit{}, nil)

	session, err := c.BeginRoleEdit(context.Background(), "r1")
	require.NoError(t, err)

	err = session.Commit(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateEditing, session.State(), "an anonymous commit attempt leaves the session editable")
}

func TestDiscard(t *testing.T) {
	roleStore := newFakeRoleStore(roles.Role{ID: "r1", Name: "Financeiro", Permissions: []string{"finance.view"}, Version: 1})
	c := testCoordinator(roleStore, newFakeStaffStore(), &fakeAudit{}, nil)

	session, err := c.BeginRoleEdit(context.Background(), "r1")
	require.NoError(t, err)
	require.NoError(t, session.Toggle("finance.manage"))

	require.NoError(t, session.Discard())
	assert.Equal(t, StateIdle, session.State())
	assert.Empty(t, session.Working())

	err = session.Toggle("finance.view")
	require.Error(t, err, "an idle session accepts no further toggles")
}

func TestDiscardFromFailed(t *testing.T) {
	roleStore := newFakeRoleStore(roles.Role{ID: "r1", Name: "Financeiro", Permissions: []string{"finance.view"}, Version: 2})
	c := testCoordinator(roleStore, newFakeStaffStore(), &fakeAudit{}, nil)

	session, err := c.BeginRoleEdit(context.Background(), "r1")
	require.NoError(t, err)
	_, err = roleStore.ReplacePermissions(context.Background(), "r1", []string{"finance.view"}, 2)
	require.NoError(t, err)

	require.Error(t, session.Commit(actorContext()))
	require.Equal(t, StateFailed, session.State())

	require.NoError(t, session.Discard())
	assert.Equal(t, StateIdle, session.State())
	assert.Equal(t, FailureNone, session.Reason())
}

func TestBeginOverrideEditUsesExistingOverride(t *testing.T) {
	staffStore := newFakeStaffStore(staff.Member{
		ID: "u1", Name: "Carla", RoleName: "Financeiro",
		Override: staff.Override{Permissions: []string{"catalog.view"}, Valid: true},
		Version:  2,
	})
	c := NewCoordinator(newFakeRoleStore(), staffStore, &fakeResolver{perms: []string{"finance.view"}}, &fakeAudit{}, nil, slog.Default())

	session, err := c.BeginOverrideEdit(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"catalog.view"}, session.Working(), "an existing override, not the role matrix, seeds the edit")
	assert.Equal(t, int64(2), session.Version())
}

func TestCreateRoleWritesLedger(t *testing.T) {
	ledger := &fakeAudit{}
	c := testCoordinator(newFakeRoleStore(), newFakeStaffStore(), ledger, nil)

	role, err := c.CreateRole(actorContext(), "Operacional", []string{"projects.view"})
	require.NoError(t, err)
	assert.Equal(t, "Operacional", role.Name)

	require.Len(t, ledger.entries, 1)
	assert.Equal(t, audit.ActionRoleCreated, ledger.entries[0].ActionType)
	assert.Equal(t, "Operacional", ledger.entries[0].TargetName)
}

func TestSoftDeleteRoleWritesLedgerAndAnnounces(t *testing.T) {
	roleStore := newFakeRoleStore(roles.Role{ID: "r1", Name: "Legado", Version: 1})
	ledger := &fakeAudit{}
	bus := &fakeBus{}
	c := testCoordinator(roleStore, newFakeStaffStore(), ledger, bus)

	require.NoError(t, c.SoftDeleteRole(actorContext(), "r1", 1))
	assert.True(t, roleStore.byID["r1"].IsDeleted)
	require.Len(t, ledger.entries, 1)
	assert.Equal(t, audit.ActionRoleDeleted, ledger.entries[0].ActionType)
	require.Len(t, bus.events, 1)
}

func TestClearOverrideWritesLedger(t *testing.T) {
	staffStore := newFakeStaffStore(staff.Member{
		ID: "u1", Name: "Carla", RoleName: "Financeiro",
		Override: staff.Override{Permissions: []string{"catalog.view"}, Valid: true},
		Version:  2,
	})
	ledger := &fakeAudit{}
	c := testCoordinator(newFakeRoleStore(), staffStore, ledger, &fakeBus{})

	member, err := c.ClearOverride(actorContext(), "u1", 2)
	require.NoError(t, err)
	assert.False(t, member.Override.Valid)
	require.Len(t, ledger.entries, 1)
	assert.Equal(t, audit.ActionUserOverrideSync, ledger.entries[0].ActionType)
}
