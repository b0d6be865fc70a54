package audit

import "time"

// ActionType labels the kind of privilege change an entry records.
type ActionType string

const (
	// ActionRoleMatrixSync records a role's permission matrix being replaced.
	ActionRoleMatrixSync ActionType = "ROLE_MATRIX_SYNC"
	// ActionUserOverrideSync records a staff member's override being replaced.
	ActionUserOverrideSync ActionType = "USER_OVERRIDE_SYNC"
	// ActionRoleCreated records a new role being installed.
	ActionRoleCreated ActionType = "ROLE_CREATED"
	// ActionRoleDeleted records a role being soft-deleted.
	ActionRoleDeleted ActionType = "ROLE_DELETED"
)

// Entry is one immutable record in the privilege change ledger. Entries are
// created once per committed mutation and never updated or deleted.
type Entry struct {
	ID            string
	AdminID       string
	AdminName     string
	TargetName    string
	ActionType    ActionType
	ChangeDetails string
	CreatedAt     time.Time
}
