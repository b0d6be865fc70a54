// Package grants coordinates permission matrix edits. A session snapshots a
// target's permission set, collects toggles against the working copy, and
// commits the mutation together with its audit ledger entry.
package grants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-erp/internal/audit"
	"github.com/vantage-erp/vantage-erp/internal/catalog"
	"github.com/vantage-erp/vantage-erp/internal/events"
	"github.com/vantage-erp/vantage-erp/internal/roles"
	"github.com/vantage-erp/vantage-erp/internal/shared"
	"github.com/vantage-erp/vantage-erp/internal/staff"
)

// RoleStore is the role mutation surface the coordinator drives.
type RoleStore interface {
	Get(ctx context.Context, id string) (roles.Role, error)
	Create(ctx context.Context, name string, perms []string) (roles.Role, error)
	ReplacePermissions(ctx context.Context, id string, perms []string, expectedVersion int64) (roles.Role, error)
	SoftDelete(ctx context.Context, id string, expectedVersion int64) error
}

// StaffStore is the override mutation surface the coordinator drives.
type StaffStore interface {
	Get(ctx context.Context, id string) (staff.Member, error)
	SetOverride(ctx context.Context, id string, override staff.Override, expectedVersion int64) (staff.Member, error)
	ResetToRoleDefault(ctx context.Context, id string, expectedVersion int64) (staff.Member, error)
}

// Resolver supplies the member's current effective set when an override edit
// begins without an existing override.
type Resolver interface {
	EffectivePermissions(ctx context.Context, memberID string) ([]string, error)
}

// AuditAppender writes ledger entries.
type AuditAppender interface {
	Append(ctx context.Context, entry audit.Entry) error
}

// Publisher announces committed changes. Optional; publish failures never
// fail a commit.
type Publisher interface {
	PublishPermissionsChanged(ctx context.Context, event events.PermissionsChanged) error
}

// Coordinator creates editing sessions. Multiple coordinators may race on
// the same target; the per-target version captured at BeginEdit turns the
// race into a VERSION_CONFLICT failure instead of a silent lost update.
type Coordinator struct {
	roles    RoleStore
	staff    StaffStore
	resolver Resolver
	audit    AuditAppender
	bus      Publisher
	logger   *slog.Logger
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(roleStore RoleStore, staffStore StaffStore, resolver Resolver, auditLog AuditAppender, bus Publisher, logger *slog.Logger) *Coordinator {
	return &Coordinator{roles: roleStore, staff: staffStore, resolver: resolver, audit: auditLog, bus: bus, logger: logger}
}

// Session is one editing transaction. It is owned by a single administrator
// request flow; the mutex only guards against reentrant misuse.
type Session struct {
	coordinator *Coordinator

	mu         sync.Mutex
	state      State
	reason     FailureReason
	kind       TargetKind
	targetID   string
	targetName string
	version    int64
	working    map[string]struct{}
}

// BeginRoleEdit snapshots a role's matrix and version into a new session.
func (c *Coordinator) BeginRoleEdit(ctx context.Context, roleID string) (*Session, error) {
	role, err := c.roles.Get(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return c.newSession(TargetRole, role.ID, role.Name, role.Version, role.Permissions), nil
}

// BeginOverrideEdit snapshots a staff member's effective permission set and
// version into a new session. Committing always installs an override, so an
// edit that starts from role defaults detaches the member from the role.
func (c *Coordinator) BeginOverrideEdit(ctx context.Context, memberID string) (*Session, error) {
	member, err := c.staff.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	var snapshot []string
	if member.Override.Valid {
		snapshot = member.Override.Permissions
	} else {
		snapshot, err = c.resolver.EffectivePermissions(ctx, memberID)
		if err != nil {
			return nil, err
		}
	}
	return c.newSession(TargetStaff, member.ID, member.Name, member.Version, snapshot), nil
}

func (c *Coordinator) newSession(kind TargetKind, id, name string, version int64, perms []string) *Session {
	working := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		working[p] = struct{}{}
	}
	return &Session{
		coordinator: c,
		state:       StateEditing,
		kind:        kind,
		targetID:    id,
		targetName:  name,
		version:     version,
		working:     working,
	}
}

// CreateRole installs a new role and records it in the ledger. Audit writes
// stay inside the coordinator so no caller can mutate without a trail.
func (c *Coordinator) CreateRole(ctx context.Context, name string, perms []string) (roles.Role, error) {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return roles.Role{}, fmt.Errorf("grants: no actor in context")
	}
	role, err := c.roles.Create(ctx, name, perms)
	if err != nil {
		return roles.Role{}, err
	}
	entry := audit.Entry{
		ID:            uuid.NewString(),
		AdminID:       actor.ID,
		AdminName:     actor.Name,
		TargetName:    role.Name,
		ActionType:    audit.ActionRoleCreated,
		ChangeDetails: fmt.Sprintf("role created with %d permissions", len(role.Permissions)),
	}
	if err := c.audit.Append(ctx, entry); err != nil {
		return role, fmt.Errorf("grants: %w: %v", shared.ErrAuditWriteFailed, err)
	}
	return role, nil
}

// SoftDeleteRole marks a role deleted and records it in the ledger. Members
// still referencing the role fail closed until reassigned, so the change is
// announced like any other access change.
func (c *Coordinator) SoftDeleteRole(ctx context.Context, roleID string, expectedVersion int64) error {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return fmt.Errorf("grants: no actor in context")
	}
	role, err := c.roles.Get(ctx, roleID)
	if err != nil {
		return err
	}
	if err := c.roles.SoftDelete(ctx, roleID, expectedVersion); err != nil {
		return err
	}
	entry := audit.Entry{
		ID:            uuid.NewString(),
		AdminID:       actor.ID,
		AdminName:     actor.Name,
		TargetName:    role.Name,
		ActionType:    audit.ActionRoleDeleted,
		ChangeDetails: "role soft-deleted; members fail closed until reassigned",
	}
	if err := c.audit.Append(ctx, entry); err != nil {
		return fmt.Errorf("grants: %w: %v", shared.ErrAuditWriteFailed, err)
	}
	c.announce(ctx, TargetRole, role.ID, role.Name)
	return nil
}

// ClearOverride removes a member's override so the role's current matrix
// applies again, with a ledger entry.
func (c *Coordinator) ClearOverride(ctx context.Context, memberID string, expectedVersion int64) (staff.Member, error) {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return staff.Member{}, fmt.Errorf("grants: no actor in context")
	}
	member, err := c.staff.SetOverride(ctx, memberID, staff.Override{}, expectedVersion)
	if err != nil {
		return staff.Member{}, err
	}
	entry := audit.Entry{
		ID:            uuid.NewString(),
		AdminID:       actor.ID,
		AdminName:     actor.Name,
		TargetName:    member.Name,
		ActionType:    audit.ActionUserOverrideSync,
		ChangeDetails: fmt.Sprintf("override cleared; role %q defaults apply", member.RoleName),
	}
	if err := c.audit.Append(ctx, entry); err != nil {
		return member, fmt.Errorf("grants: %w: %v", shared.ErrAuditWriteFailed, err)
	}
	c.announce(ctx, TargetStaff, member.ID, member.Name)
	return member, nil
}

// ResetOverrideToRole snapshots the member's current role matrix into a fresh
// override, with a ledger entry. The snapshot does not track later role
// edits; reset again to pick them up.
func (c *Coordinator) ResetOverrideToRole(ctx context.Context, memberID string, expectedVersion int64) (staff.Member, error) {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return staff.Member{}, fmt.Errorf("grants: no actor in context")
	}
	member, err := c.staff.ResetToRoleDefault(ctx, memberID, expectedVersion)
	if err != nil {
		return staff.Member{}, err
	}
	entry := audit.Entry{
		ID:            uuid.NewString(),
		AdminID:       actor.ID,
		AdminName:     actor.Name,
		TargetName:    member.Name,
		ActionType:    audit.ActionUserOverrideSync,
		ChangeDetails: fmt.Sprintf("override reset to role %q snapshot, %d permissions active", member.RoleName, len(member.Override.Permissions)),
	}
	if err := c.audit.Append(ctx, entry); err != nil {
		return member, fmt.Errorf("grants: %w: %v", shared.ErrAuditWriteFailed, err)
	}
	c.announce(ctx, TargetStaff, member.ID, member.Name)
	return member, nil
}

// State returns the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason returns the failure reason of a FAILED session.
func (s *Session) Reason() FailureReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Version returns the target version captured when the edit began.
func (s *Session) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// TargetName returns the display name of the edit target.
func (s *Session) TargetName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetName
}

// Working returns the working copy, sorted for stable display.
func (s *Session) Working() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.working))
	for p := range s.working {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Toggle flips one permission in the working copy. Toggling twice restores
// the prior working-copy state. Adding an id unknown to the catalog is
// rejected; removing one is allowed so stale grants can be cleaned up.
func (s *Session) Toggle(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEditing && s.state != StateFailed {
		return fmt.Errorf("grants: toggle in state %s", s.state)
	}
	if _, ok := s.working[id]; ok {
		delete(s.working, id)
		return nil
	}
	if !catalog.Exists(id) {
		return fmt.Errorf("grants: %q: %w", id, shared.ErrUnknownPermission)
	}
	s.working[id] = struct{}{}
	return nil
}

// Discard abandons the session. Allowed from any state except SAVING.
func (s *Session) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSaving {
		return fmt.Errorf("grants: discard while saving")
	}
	s.state = StateIdle
	s.reason = FailureNone
	s.working = map[string]struct{}{}
	return nil
}

// Commit persists the working copy and appends the matching ledger entry.
// On a store failure nothing was written and no audit entry is made. On an
// audit failure the mutation is already live: the session fails with
// AUDIT_WRITE_FAILED, the captured version advances to the persisted one, and
// a retried Commit re-applies the same working copy idempotently.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateEditing && s.state != StateFailed {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("grants: commit in state %s", state)
	}
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("grants: no actor in context")
	}
	s.state = StateSaving
	perms := make([]string, 0, len(s.working))
	for p := range s.working {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	kind, targetID, version := s.kind, s.targetID, s.version
	s.mu.Unlock()

	name, newVersion, err := s.coordinator.persist(ctx, kind, targetID, perms, version)
	if err != nil {
		s.fail(reasonFor(err))
		return err
	}

	entry := audit.Entry{
		ID:            uuid.NewString(),
		AdminID:       actor.ID,
		AdminName:     actor.Name,
		TargetName:    name,
		ActionType:    actionFor(kind),
		ChangeDetails: fmt.Sprintf("%d permissions active for %s", len(perms), name),
	}
	if err := s.coordinator.audit.Append(ctx, entry); err != nil {
		// The mutation is live. Advance the captured version so a retry
		// re-persists the identical working copy instead of conflicting.
		s.mu.Lock()
		s.version = newVersion
		s.targetName = name
		s.state = StateFailed
		s.reason = FailureAuditWrite
		s.mu.Unlock()
		return fmt.Errorf("grants: %w: %v", shared.ErrAuditWriteFailed, err)
	}

	s.coordinator.announce(ctx, kind, targetID, name)

	s.mu.Lock()
	s.version = newVersion
	s.targetName = name
	s.state = StateCommitted
	s.reason = FailureNone
	s.mu.Unlock()
	return nil
}

func (s *Session) fail(reason FailureReason) {
	s.mu.Lock()
	s.state = StateFailed
	s.reason = reason
	s.mu.Unlock()
}

func (c *Coordinator) persist(ctx context.Context, kind TargetKind, targetID string, perms []string, version int64) (string, int64, error) {
	switch kind {
	case TargetRole:
		role, err := c.roles.ReplacePermissions(ctx, targetID, perms, version)
		if err != nil {
			return "", 0, err
		}
		return role.Name, role.Version, nil
	case TargetStaff:
		member, err := c.staff.SetOverride(ctx, targetID, staff.Override{Permissions: perms, Valid: true}, version)
		if err != nil {
			return "", 0, err
		}
		return member.Name, member.Version, nil
	default:
		return "", 0, fmt.Errorf("grants: unknown target kind %q", kind)
	}
}

func (c *Coordinator) announce(ctx context.Context, kind TargetKind, targetID, targetName string) {
	if c.bus == nil {
		return
	}
	event := events.PermissionsChanged{
		EventID:    uuid.NewString(),
		Scope:      scopeFor(kind),
		TargetID:   targetID,
		TargetName: targetName,
		OccurredAt: time.Now().UTC(),
	}
	if err := c.bus.PublishPermissionsChanged(ctx, event); err != nil && c.logger != nil {
		c.logger.Warn("grants: publish change event", slog.String("target", targetID), slog.Any("error", err))
	}
}

func actionFor(kind TargetKind) audit.ActionType {
	if kind == TargetStaff {
		return audit.ActionUserOverrideSync
	}
	return audit.ActionRoleMatrixSync
}

func scopeFor(kind TargetKind) events.Scope {
	if kind == TargetStaff {
		return events.ScopeStaff
	}
	return events.ScopeRole
}

func reasonFor(err error) FailureReason {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return FailureTargetMissing
	case errors.Is(err, shared.ErrConflict):
		return FailureConflict
	default:
		return FailureStoreWrite
	}
}
