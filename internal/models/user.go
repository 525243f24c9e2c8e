package models

import "time"

// UserRole represents the available roles for the RBAC system. Office,
// librarian, HOD and principal each own one clearance stage; staff own
// per-subject sign-offs; admin may act as any stage or subject owner.
type UserRole string

const (
	RoleStudent   UserRole = "STUDENT"
	RoleOffice    UserRole = "OFFICE"
	RoleLibrarian UserRole = "LIBRARIAN"
	RoleStaff     UserRole = "STAFF"
	RoleHOD       UserRole = "HOD"
	RolePrincipal UserRole = "PRINCIPAL"
	RoleAdmin     UserRole = "ADMIN"
)

// StageOwnerRole returns the role owning a fixed clearance stage.
func StageOwnerRole(stage ClearanceStage) UserRole {
	switch stage {
	case StageOffice:
		return RoleOffice
	case StageLibrarian:
		return RoleLibrarian
	case StageHOD:
		return RoleHOD
	case StagePrincipal:
		return RolePrincipal
	}
	return ""
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	// ProfileID links the account to its student or staff profile record.
	ProfileID *string    `db:"profile_id" json:"profile_id,omitempty"`
	Active    bool       `db:"active" json:"active"`
	LastLogin *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Actor is the identity an engine call acts as. Not a stored entity: built
// from JWT claims per request.
type Actor struct {
	Role      UserRole `json:"role"`
	UserID    string   `json:"user_id"`
	ProfileID string   `json:"profile_id"`
	Name      string   `json:"name"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
