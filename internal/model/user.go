package model

import (
	"strings"
	"time"
)

// Role is the canonical trust role of a user.
type Role string

const (
	RoleCitizen  Role = "citizen"
	RoleApproved Role = "approved"
	RoleAdmin    Role = "admin"
)

// ParseRole normalizes a stored or incoming role string. Names from the
// legacy profile scheme are folded into the canonical roles; anything
// unrecognized becomes a citizen.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "ministry":
		return RoleAdmin
	case "approved", "delegate", "supervisor":
		return RoleApproved
	default:
		return RoleCitizen
	}
}

// KnownRole reports whether s names one of the canonical roles exactly.
func KnownRole(s string) bool {
	switch Role(s) {
	case RoleCitizen, RoleApproved, RoleAdmin:
		return true
	}
	return false
}

// User is an actor of the platform. Weight is derived from Role.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Weight       int       `json:"weight"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"-"`
}

// UserResponse is the API response for a public profile.
type UserResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Role            Role   `json:"role"`
	Weight          int    `json:"weight"`
	ReportCount     int    `json:"reportCount"`
	ValidationCount int    `json:"validationCount"`
	MemberSince     string `json:"memberSince"`
}

// SignUpRequest is the API request body for registration.
type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Name     string `json:"name" validate:"required,max=50"`
}

// SignInRequest is the API request body for authentication.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RoleChangeRequest is the API request body for an administrative role change.
type RoleChangeRequest struct {
	Role string `json:"role" validate:"required"`
}

// Session is an authenticated user session.
type Session struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"-"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionEventType names a change in a user's session state.
type SessionEventType string

const (
	SessionSignedIn    SessionEventType = "signed_in"
	SessionSignedOut   SessionEventType = "signed_out"
	SessionRoleChanged SessionEventType = "role_changed"
)

// SessionEvent is published whenever a user's session state changes.
type SessionEvent struct {
	Type   SessionEventType `json:"type"`
	UserID string           `json:"userId"`
	Role   Role             `json:"role,omitempty"`
	At     time.Time        `json:"at"`
}
