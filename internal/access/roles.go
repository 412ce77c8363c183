// Package access implements the role and jurisdiction based visibility and
// mutation rules that partition the incident registry per caller.
package access

import "fmt"

// Role is the closed set of caller roles. Role strings arriving from tokens or
// registration requests must go through ParseRole so typos are rejected at the
// boundary instead of silently failing comparisons later.
type Role string

const (
	RoleCitizen           Role = "citizen"
	RolePanchayathAdmin   Role = "panchayath_admin"
	RoleMunicipalityAdmin Role = "municipality_admin"
	RoleDistrictAuthority Role = "district_authority"
	RoleStateAuthority    Role = "state_authority"
	RoleNationalAuthority Role = "national_authority"
	RoleDistrictAdmin     Role = "district_admin"
	RoleStateAdmin        Role = "state_admin"
	RoleNationalAdmin     Role = "national_admin"
)

var allRoles = map[Role]struct{}{
	RoleCitizen:           {},
	RolePanchayathAdmin:   {},
	RoleMunicipalityAdmin: {},
	RoleDistrictAuthority: {},
	RoleStateAuthority:    {},
	RoleNationalAuthority: {},
	RoleDistrictAdmin:     {},
	RoleStateAdmin:        {},
	RoleNationalAdmin:     {},
}

// ParseRole validates a role string against the closed role set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := allRoles[r]; !ok {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// IsAuthority reports whether the role may mutate incident records.
func (r Role) IsAuthority() bool {
	switch r {
	case RolePanchayathAdmin, RoleMunicipalityAdmin, RoleDistrictAuthority,
		RoleStateAuthority, RoleNationalAuthority:
		return true
	}
	return false
}

// IsAdmin reports whether the role may manage invitation codes.
func (r Role) IsAdmin() bool {
	switch r {
	case RoleDistrictAdmin, RoleStateAdmin, RoleNationalAdmin:
		return true
	}
	return false
}

// RequiresInvitation reports whether registering with this role needs a valid
// invitation code. Citizens register freely.
func (r Role) RequiresInvitation() bool {
	return r != RoleCitizen
}

// RegionField identifies which region tag of a record a role is compared against.
type RegionField int

const (
	RegionNone RegionField = iota // no filtering for this role
	RegionState
	RegionDistrict
	RegionMandal
)

// jurisdictionScope is the static role to region-field lookup table.
// National authorities see everything; citizens and unauthenticated callers
// see everything but may not mutate.
var jurisdictionScope = map[Role]RegionField{
	RoleStateAuthority:    RegionState,
	RoleDistrictAuthority: RegionDistrict,
	RolePanchayathAdmin:   RegionMandal,
	RoleMunicipalityAdmin: RegionMandal,
}

// ScopeField returns the region field the role is scoped by, or RegionNone.
func ScopeField(role Role) RegionField {
	if f, ok := jurisdictionScope[role]; ok {
		return f
	}
	return RegionNone
}
