package roles

import "time"

// Role represents a named bundle of permissions shared by staff members.
// Roles are soft-deleted only, so audit history keeps resolving their names.
type Role struct {
	ID          string
	Name        string
	IsDeleted   bool
	Permissions []string
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasPermission reports whether the role's matrix grants id.
func (r Role) HasPermission(id string) bool {
	for _, p := range r.Permissions {
		if p == id {
			return true
		}
	}
	return false
}
