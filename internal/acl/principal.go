package acl

import (
	"context"
	"fmt"
)

// GroupMembership exposes read access to group membership. Membership is
// owned by an external collaborator; the engine only reads it.
type GroupMembership interface {
	GroupIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// Resolver expands an authenticated identity into the ordered principal set
// consulted by permission queries.
type Resolver struct {
	groups GroupMembership
}

// NewResolver constructs a Resolver.
func NewResolver(groups GroupMembership) *Resolver {
	return &Resolver{groups: groups}
}

// UserPrincipals returns {USER}, {ROLE}? and one {GROUP} per current
// membership, always followed by {PUBLIC} so public grants apply to every
// caller. The result reflects group state at call time; callers must not
// assume stability across separate queries.
func (r *Resolver) UserPrincipals(ctx context.Context, userID, systemRole string) ([]Principal, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidPrincipal)
	}

	principals := []Principal{{Type: PrincipalUser, ID: userID}}
	if systemRole != "" {
		principals = append(principals, Principal{Type: PrincipalRole, ID: systemRole})
	}

	if r.groups != nil {
		groupIDs, err := r.groups.GroupIDsForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("acl: expand groups for user %s: %w", userID, err)
		}
		for _, id := range groupIDs {
			principals = append(principals, Principal{Type: PrincipalGroup, ID: id})
		}
	}

	return append(principals, Principal{Type: PrincipalPublic}), nil
}
