// Package acl implements the access control engine: the bitmask permission
// model, principal resolution, grant/revoke semantics and the permission
// query surface used to filter list views.
package acl

import (
	"errors"
	"fmt"
	"time"
)

// PermBits is an unsigned bitmask of granted capabilities.
type PermBits uint32

// Atomic permission bits.
const (
	PermView   PermBits = 1 << iota // 1
	PermEdit                        // 2
	PermDelete                      // 4
	PermShare                       // 8
)

// Composite bundles mirrored by the seeded access roles.
const (
	BitsViewer = PermView
	BitsEditor = PermView | PermEdit
	BitsOwner  = PermView | PermEdit | PermDelete | PermShare
)

// Has reports whether every bit in required is present.
func (b PermBits) Has(required PermBits) bool {
	return b&required == required
}

// PrincipalType discriminates the kinds of entities permissions can be
// granted to.
type PrincipalType string

const (
	PrincipalUser   PrincipalType = "user"
	PrincipalGroup  PrincipalType = "group"
	PrincipalRole   PrincipalType = "role"
	PrincipalPublic PrincipalType = "public"
)

// Valid reports whether the principal type is one of the recognized values.
func (t PrincipalType) Valid() bool {
	switch t {
	case PrincipalUser, PrincipalGroup, PrincipalRole, PrincipalPublic:
		return true
	}
	return false
}

// Principal identifies an entity that can hold permissions. ID is an opaque
// identifier for users and groups, a role name for roles, and empty for the
// public principal.
type Principal struct {
	Type PrincipalType
	ID   string
}

// Validate enforces the principal shape invariants.
func (p Principal) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("%w: principal type %q", ErrInvalidPrincipal, p.Type)
	}
	if p.Type == PrincipalPublic {
		if p.ID != "" {
			return fmt.Errorf("%w: public principal must not carry an id", ErrInvalidPrincipal)
		}
		return nil
	}
	if p.ID == "" {
		return fmt.Errorf("%w: %s principal requires an id", ErrInvalidPrincipal, p.Type)
	}
	return nil
}

// Entry is one ACL grant record. At most one entry exists per
// (PrincipalType, PrincipalID, ResourceType, ResourceID) tuple; a re-grant
// replaces the existing entry rather than accumulating bits.
type Entry struct {
	ID             int64
	PrincipalType  PrincipalType
	PrincipalID    string
	ResourceType   string
	ResourceID     string
	PermBits       PermBits
	RoleIdentifier string
	GrantedBy      string
	GrantedAt      time.Time
	InheritedFrom  string
}

// Sentinel errors for the engine. Validation errors always propagate to the
// caller; infrastructure failures on read paths are converted to the safe
// negative by the service facade.
var (
	ErrInvalidPrincipal    = errors.New("acl: invalid principal")
	ErrInvalidResourceType = errors.New("acl: invalid resource type")
	ErrMissingResourceID   = errors.New("acl: resource id required")
	ErrInvalidPermBits     = errors.New("acl: permission bits must be positive")
	ErrEntryNotFound       = errors.New("acl: entry not found")
)
