// Package groups provides read access to group membership. Groups are owned
// by the directory service; locally we only read member lists for principal
// expansion.
package groups

import "time"

// Group is a named collection of users.
type Group struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
