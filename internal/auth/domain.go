// Package auth authenticates operators of the access service. The ACL
// engine itself never authenticates; it consumes the identity produced here.
package auth

import "time"

// User represents an authenticated user account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	SystemRole   string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
