package shared

// SystemRoleAdministrator is the system role granted unconditional access
// by the resource guard.
const SystemRoleAdministrator = "administrator"

// Identity is the authenticated caller as seen by this service: an opaque
// user ID plus an optional system role string supplied at login. The access
// engine never computes either.
type Identity struct {
	UserID     string
	SystemRole string
}

// IsAdministrator reports whether the identity carries the administrator
// system role.
func (i Identity) IsAdministrator() bool {
	return i.SystemRole == SystemRoleAdministrator
}
