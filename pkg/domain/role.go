package domain

import "fmt"

// Role is a principal's primary role. Exactly one per user; admin is a
// separately granted flag, not a role.
type Role string

const (
	RoleJobSeeker  Role = "job_seeker"
	RoleEmployer   Role = "employer"
	RoleUniversity Role = "university"
	RoleAdmin      Role = "admin"
)

// ParseRole validates and returns a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleJobSeeker, RoleEmployer, RoleUniversity, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role: %s", s)
	}
}

func (r Role) String() string { return string(r) }

// Capability is a single permission held by a principal. Authorization
// checks capabilities, never role names, so role semantics live in one
// place (CapabilitiesFor).
type Capability string

const (
	CapReadOwn    Capability = "read-own"
	CapReadShared Capability = "read-shared"
	CapReadAll    Capability = "read-all"
	CapWriteOwn   Capability = "write-own"
	CapWriteAll   Capability = "write-all"
	CapReadStats  Capability = "read-stats"
)

// CapabilitySet is the set of capabilities resolved for a principal.
type CapabilitySet map[Capability]struct{}

func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// CapabilitiesFor maps a role plus the admin flag to a capability set.
// All primary roles get own-document rights and shared visibility; only
// the admin grant widens access to the whole corpus and the stats surface.
func CapabilitiesFor(role Role, admin bool) CapabilitySet {
	set := CapabilitySet{
		CapReadOwn:    {},
		CapReadShared: {},
		CapWriteOwn:   {},
	}
	if admin || role == RoleAdmin {
		set[CapReadAll] = struct{}{}
		set[CapWriteAll] = struct{}{}
		set[CapReadStats] = struct{}{}
	}
	return set
}

// Principal identifies an authenticated caller inside core operations.
// It is passed explicitly; core code never reads ambient session state.
type Principal struct {
	UserID UserID
	Role   Role
	Admin  bool
}

// Anonymous is the unauthenticated principal used by the public portfolio
// read path. It carries no capabilities.
func Anonymous() Principal {
	return Principal{}
}

// IsAnonymous reports whether the principal is unauthenticated.
func (p Principal) IsAnonymous() bool { return p.UserID.IsNil() }

// Capabilities resolves this principal's capability set.
func (p Principal) Capabilities() CapabilitySet {
	if p.IsAnonymous() {
		return CapabilitySet{}
	}
	return CapabilitiesFor(p.Role, p.Admin)
}
