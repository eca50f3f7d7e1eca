// Package users holds the user-directory types the auth layer consumes.
// The directory itself is owned by the surrounding CRUD layer; the core only
// reads users at login and carries their identity as token claims.
package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// RoleType represents a user's role within their tenant.
type RoleType string

const (
	RoleAdmin   RoleType = "admin"
	RoleTeacher RoleType = "teacher"
	RoleStudent RoleType = "student"

	// RoleSuperAdmin is a system-level role. It bypasses the tenant-match
	// check only when the guard is explicitly configured to allow it.
	RoleSuperAdmin RoleType = "super_admin"
)

// ValidRole reports whether r is one of the roles the system issues tokens for.
func ValidRole(r RoleType) bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleSuperAdmin:
		return true
	}
	return false
}

// User is a directory entry. A user belongs to exactly one tenant.
type User struct {
	ID           string    `json:"id,omitempty"`
	TenantID     string    `json:"tenant_id,omitempty"`
	Email        string    `json:"email,omitempty"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"` // never serialize
	Role         RoleType  `json:"role,omitempty"`
	IsActive     bool      `json:"is_active,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	LastLogin    time.Time `json:"last_login,omitempty"`
}

// Identity is the authenticated claim bundle handed to downstream
// authorization and attendance operations after token validation.
type Identity struct {
	UserID   string   `json:"user_id"`
	TenantID string   `json:"tenant_id"`
	Role     RoleType `json:"role"`
	Email    string   `json:"email,omitempty"`
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// IsSuperAdmin returns true if the user holds the system-level role.
func (u *User) IsSuperAdmin() bool {
	return u.Role == RoleSuperAdmin
}

// Identity returns the claim bundle for this user.
func (u *User) Identity() Identity {
	return Identity{
		UserID:   u.ID,
		TenantID: u.TenantID,
		Role:     u.Role,
		Email:    u.Email,
	}
}
