package staff

import "time"

// Override is a two-state permission override. Valid=false means the member
// has no override and falls through to the role's current matrix. Valid=true
// means Permissions replaces the role entirely, even when the set is empty;
// an empty override denies everything.
type Override struct {
	Permissions []string
	Valid       bool
}

// Member represents a staff record subject to authorization. RoleID is the
// stable join key to the role; RoleName is a denormalized display attribute
// filled at read time, so renaming a role never strands its members.
type Member struct {
	ID        string
	Name      string
	RoleID    string
	RoleName  string
	Override  Override
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
