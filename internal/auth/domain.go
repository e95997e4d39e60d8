// Package auth authenticates users and resolves bearer tokens into the
// franchise scope every service operation requires.
package auth

import (
	"errors"
	"time"

	"github.com/stocklane/stocklane/internal/shared"
)

// ErrInvalidCredentials is returned for any failed login attempt. The reason
// is deliberately not disclosed.
var ErrInvalidCredentials = errors.New("invalid credentials")

// User represents an authenticated user account bound to one franchise.
// Admins carry franchise ID zero and span all franchises.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	FranchiseID  int64
	Role         shared.Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Scope projects the user onto the capability passed through services.
func (u *User) Scope() shared.Scope {
	return shared.Scope{UserID: u.ID, FranchiseID: u.FranchiseID, Role: u.Role}
}
