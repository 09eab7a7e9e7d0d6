package models

import (
	"errors"
	"fmt"
	"strings"
)

// Role is a tenant-level capability. Roles are totally ordered:
// owner > admin > manager > member > guest.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
	RoleGuest   Role = "guest"
)

// ErrInvalidRole is returned when a string does not name a known role.
var ErrInvalidRole = errors.New("role: invalid role")

var roleRanks = map[Role]int{
	RoleOwner:   50,
	RoleAdmin:   40,
	RoleManager: 30,
	RoleMember:  20,
	RoleGuest:   10,
}

// Roles lists every role from highest to lowest.
func Roles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleManager, RoleMember, RoleGuest}
}

// ParseRole converts user input into a Role.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, value)
	}
	return role, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank returns the ordinal of r; unknown roles rank below guest.
func (r Role) Rank() int {
	return roleRanks[r]
}

// AtLeast reports whether r is equal to or above other.
func (r Role) AtLeast(other Role) bool {
	return r.Valid() && r.Rank() >= other.Rank()
}

// IsElevated reports whether r grants the global elevated-access flag.
func (r Role) IsElevated() bool {
	return r.AtLeast(RoleManager)
}

func (r Role) String() string {
	return string(r)
}
