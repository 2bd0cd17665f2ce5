package auth

import (
	"errors"
	"time"
)

// ErrInvalidCredentials is returned for unknown users, inactive users and
// wrong passwords alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// User represents a back-office account.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"isActive"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// SessionResponse describes the signed-in user and the CSRF token mutating
// requests must echo in X-CSRF-Token.
type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	User          *User  `json:"user,omitempty"`
	CSRFToken     string `json:"csrfToken,omitempty"`
}
