package model

import (
	"errors"
	"time"
)

// User represents an authentication user.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Role decides which deletion workflow transitions a caller may perform.
type Role string

// Roles. Submitters (tier 2) may only request deletion; approvers (tier 3)
// delete directly and resolve pending requests.
const (
	RoleSubmitter Role = "submitter"
	RoleApprover  Role = "approver"
)

// ParseRole returns the role named by s. Legacy tier names are accepted.
// Unknown names yield false.
func ParseRole(s string) (Role, bool) {
	switch s {
	case string(RoleSubmitter), "Tier2", "tier2":
		return RoleSubmitter, true
	case string(RoleApprover), "Tier3", "tier3":
		return RoleApprover, true
	default:
		return "", false
	}
}

// CanDelete reports whether the role removes records without approval.
func (r Role) CanDelete() bool {
	return r == RoleApprover
}

// CanRequestDeletion reports whether the role may flag records for deletion.
func (r Role) CanRequestDeletion() bool {
	return r == RoleSubmitter || r == RoleApprover
}

// Actor is an authenticated caller, resolved once per request.
type Actor struct {
	UserID   int64
	Username string
	Role     Role
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}
