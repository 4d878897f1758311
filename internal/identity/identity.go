// Package identity provides user management, authentication, sessions, and
// the role gate. The core consumes a verified (identity, displayName, role)
// triple per call; everything else here is the credential collaborator.
package identity

import (
	"errors"

	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrInvalidPassword = errors.New("invalid password")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionNotFound = errors.New("session not found")
)

// Role constants. Overseer is the privileged coordinator role with
// cross-request visibility.
const (
	RoleRequester    = "requester"
	RoleOrganization = "organization"
	RoleVolunteer    = "volunteer"
	RoleSupplier     = "supplier"
	RoleOverseer     = "overseer"
)

// ValidRole reports whether the role string is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleRequester, RoleOrganization, RoleVolunteer, RoleSupplier, RoleOverseer:
		return true
	}
	return false
}

// Identity is the verified caller resolved once per incoming call.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// IsOverseer reports whether the identity holds the privileged role.
func (id Identity) IsOverseer() bool {
	return id.Role == RoleOverseer
}

// FromUser builds the verified triple from a stored user.
func FromUser(u *store.User) Identity {
	return Identity{ID: u.ID, DisplayName: u.DisplayName, Role: u.Role}
}
