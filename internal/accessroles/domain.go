// Package accessroles owns the registry of named permission bundles.
package accessroles

import (
	"errors"
	"time"

	"github.com/meridian-ai/meridian/internal/acl"
)

// AccessRole maps a human-facing role label to a fixed bit combination for
// one resource type. Rows are seeded at startup and rarely touched after.
type AccessRole struct {
	ID           int64
	Identifier   string
	Name         string
	Description  string
	ResourceType string
	PermBits     acl.PermBits
	CreatedAt    time.Time
}

// ErrRoleNotFound indicates the requested role does not exist.
var ErrRoleNotFound = errors.New("accessroles: role not found")
