package grants

// TargetKind distinguishes what an editing session mutates.
type TargetKind string

const (
	// TargetRole edits a role's base permission matrix.
	TargetRole TargetKind = "ROLE"
	// TargetStaff edits a staff member's permission override.
	TargetStaff TargetKind = "STAFF"
)

// State enumerates the editing session lifecycle.
type State string

const (
	StateIdle      State = "IDLE"
	StateEditing   State = "EDITING"
	StateSaving    State = "SAVING"
	StateCommitted State = "COMMITTED"
	StateFailed    State = "FAILED"
)

// FailureReason explains a FAILED session. AUDIT_WRITE_FAILED is the one
// reason where the permission change is already live: the mutation persisted
// but its ledger entry did not, and the caller must be told exactly that.
type FailureReason string

const (
	FailureNone          FailureReason = ""
	FailureTargetMissing FailureReason = "TARGET_MISSING"
	FailureConflict      FailureReason = "VERSION_CONFLICT"
	FailureStoreWrite    FailureReason = "STORE_WRITE_FAILED"
	FailureAuditWrite    FailureReason = "AUDIT_WRITE_FAILED"
)
