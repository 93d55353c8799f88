package authclient

import (
	"fmt"
	"strings"
)

// Role is the closed set of platform roles stored on the user profile.
type Role uint8

const (
	// RoleUser is the default role for any registered account.
	RoleUser Role = iota
	RoleGuest
	RoleAdvertiser
	RoleDev
	RoleAdmin
)

// String returns the wire name of the role
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleGuest:
		return "guest"
	case RoleAdvertiser:
		return "advertiser"
	case RoleDev:
		return "dev"
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleGuest, RoleAdvertiser, RoleDev, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsStaff reports whether the role belongs to the internal team.
func (r Role) IsStaff() bool {
	switch r {
	case RoleDev, RoleAdmin:
		return true
	default:
		return false
	}
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []Role {
	return []Role{
		RoleUser,
		RoleGuest,
		RoleAdvertiser,
		RoleDev,
		RoleAdmin,
	}
}

// ParseRole parses a wire name. Unknown or empty values resolve to RoleUser
// with ok set to false so callers can decide whether to reject them.
func ParseRole(roleStr string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(roleStr)) {
	case "user":
		return RoleUser, true
	case "guest":
		return RoleGuest, true
	case "advertiser":
		return RoleAdvertiser, true
	case "dev":
		return RoleDev, true
	case "admin":
		return RoleAdmin, true
	default:
		return RoleUser, false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("authclient: invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names are
// stored as RoleUser.
func (r *Role) UnmarshalText(b []byte) error {
	role, _ := ParseRole(string(b))
	*r = role
	return nil
}

// RoleSet is an allow list of roles.
type RoleSet map[Role]struct{}

// NewRoleSet builds a RoleSet from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Has reports whether the role is in the set.
func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// Roles returns the members of the set in declaration order.
func (s RoleSet) Roles() []Role {
	out := make([]Role, 0, len(s))
	for _, r := range GetAllRoles() {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}
