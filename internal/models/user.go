package models

import "time"

// Role gates what an authenticated user may do.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleTech   Role = "tech"
	RoleViewer Role = "viewer"
)

// AllRoles lists every role accepted by the API.
var AllRoles = []Role{RoleAdmin, RoleTech, RoleViewer}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTech, RoleViewer:
		return true
	}
	return false
}

// User is an operator account. Users are deactivated, never deleted.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}
