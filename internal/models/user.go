package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole represents an admin user's permission level.
type UserRole string

const (
	// UserRoleAdmin can manage everything including other users.
	UserRoleAdmin UserRole = "admin"
	// UserRoleOperator can manage catalog and entitlements but not users.
	UserRoleOperator UserRole = "operator"
	// UserRoleViewer has read-only access.
	UserRoleViewer UserRole = "viewer"
)

// ValidUserRoles returns all valid roles.
func ValidUserRoles() []UserRole {
	return []UserRole{UserRoleAdmin, UserRoleOperator, UserRoleViewer}
}

// IsValid checks if the role is a known value.
func (r UserRole) IsValid() bool {
	for _, valid := range ValidUserRoles() {
		if r == valid {
			return true
		}
	}
	return false
}

// CanWrite returns true if the role may mutate catalog and entitlements.
func (r UserRole) CanWrite() bool {
	return r == UserRoleAdmin || r == UserRoleOperator
}

// User is an administrator of the Granta server.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         UserRole   `json:"role"`
	PasswordHash string     `json:"-"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewUser creates a new admin user.
func NewUser(email, name string, role UserRole, passwordHash string) *User {
	now := time.Now()
	return &User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// LoginRequest is the request body for admin login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}
