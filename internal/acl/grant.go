package acl

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ResourceTypes is the registry the engine validates resource types against.
// The set is owned elsewhere; the engine only checks membership.
type ResourceTypes interface {
	Known(resourceType string) bool
}

// RoleGrant is the portion of an access role the grant engine needs when a
// grant is made "using a role".
type RoleGrant struct {
	Identifier   string
	ResourceType string
	Bits         PermBits
}

// RoleDirectory resolves role identifiers to their permission bits.
type RoleDirectory interface {
	RoleGrant(ctx context.Context, identifier string) (RoleGrant, error)
}

// Grants mutates ACL entries. Atomicity per tuple is delegated to the
// store's native upsert and conditional delete; bulk updates are explicitly
// not atomic as a whole.
type Grants struct {
	repo  EntryRepository
	roles RoleDirectory
	types ResourceTypes
	now   func() time.Time
}

// NewGrants constructs the grant engine.
func NewGrants(repo EntryRepository, roles RoleDirectory, types ResourceTypes) *Grants {
	return &Grants{repo: repo, roles: roles, types: types, now: time.Now}
}

// GrantInput carries the parameters of a single grant.
type GrantInput struct {
	PrincipalType  PrincipalType
	PrincipalID    string
	ResourceType   string
	ResourceID     string
	Bits           PermBits
	GrantedBy      string
	RoleIdentifier string
	InheritedFrom  string
}

func (g *Grants) validateTarget(resourceType, resourceID string) error {
	if resourceID == "" {
		return ErrMissingResourceID
	}
	if g.types != nil && !g.types.Known(resourceType) {
		return fmt.Errorf("%w: %q", ErrInvalidResourceType, resourceType)
	}
	return nil
}

// Grant upserts the tuple's entry. A repeated grant replaces bits, role,
// grantor and timestamp in place; additive semantics would make downgrading
// a principal by re-granting impossible.
func (g *Grants) Grant(ctx context.Context, in GrantInput) (Entry, error) {
	principal := Principal{Type: in.PrincipalType, ID: in.PrincipalID}
	if err := principal.Validate(); err != nil {
		return Entry{}, err
	}
	if err := g.validateTarget(in.ResourceType, in.ResourceID); err != nil {
		return Entry{}, err
	}
	if in.Bits == 0 {
		return Entry{}, fmt.Errorf("%w: grant carries no bits", ErrInvalidPermBits)
	}
	return g.repo.Upsert(ctx, Entry{
		PrincipalType:  in.PrincipalType,
		PrincipalID:    in.PrincipalID,
		ResourceType:   in.ResourceType,
		ResourceID:     in.ResourceID,
		PermBits:       in.Bits,
		RoleIdentifier: in.RoleIdentifier,
		GrantedBy:      in.GrantedBy,
		GrantedAt:      g.now().UTC(),
		InheritedFrom:  in.InheritedFrom,
	})
}

// GrantRole grants using a named access role: the role's bits are copied
// into the entry and the identifier recorded for traceability.
func (g *Grants) GrantRole(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID, roleIdentifier, grantedBy string) (Entry, error) {
	role, err := g.roles.RoleGrant(ctx, roleIdentifier)
	if err != nil {
		return Entry{}, err
	}
	if role.ResourceType != resourceType {
		return Entry{}, fmt.Errorf("%w: role %s targets %s, not %s", ErrInvalidResourceType, roleIdentifier, role.ResourceType, resourceType)
	}
	return g.Grant(ctx, GrantInput{
		PrincipalType:  principalType,
		PrincipalID:    principalID,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		Bits:           role.Bits,
		GrantedBy:      grantedBy,
		RoleIdentifier: role.Identifier,
	})
}

// Revoke deletes the tuple's entry if present. Absence is not an error; the
// returned count is 0 or 1.
func (g *Grants) Revoke(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string) (int64, error) {
	principal := Principal{Type: principalType, ID: principalID}
	if err := principal.Validate(); err != nil {
		return 0, err
	}
	if err := g.validateTarget(resourceType, resourceID); err != nil {
		return 0, err
	}
	return g.repo.Delete(ctx, principalType, principalID, resourceType, resourceID)
}

// ModifyBits applies bits |= add; bits &^= remove to an existing entry.
// When no entry exists it returns nil without creating one.
func (g *Grants) ModifyBits(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string, add, remove PermBits) (*Entry, error) {
	principal := Principal{Type: principalType, ID: principalID}
	if err := principal.Validate(); err != nil {
		return nil, err
	}
	if err := g.validateTarget(resourceType, resourceID); err != nil {
		return nil, err
	}
	current, err := g.repo.Get(ctx, principalType, principalID, resourceType, resourceID)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, nil
		}
		return nil, err
	}
	next := (current.PermBits | add) &^ remove
	updated, err := g.repo.UpdateBits(ctx, principalType, principalID, resourceType, resourceID, next)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			// Raced with a revoke; same outcome as no entry.
			return nil, nil
		}
		return nil, err
	}
	return &updated, nil
}

// BulkPrincipalUpdate names a principal and the access role to grant it.
type BulkPrincipalUpdate struct {
	PrincipalType  PrincipalType
	PrincipalID    string
	RoleIdentifier string
}

// BulkPrincipalRevoke names a principal whose grant should be removed.
type BulkPrincipalRevoke struct {
	PrincipalType PrincipalType
	PrincipalID   string
}

// BulkError records one failed item of a bulk update.
type BulkError struct {
	PrincipalType PrincipalType `json:"principalType"`
	PrincipalID   string        `json:"principalId"`
	Message       string        `json:"message"`
}

// BulkResult reports the outcome of a bulk update.
type BulkResult struct {
	Granted []Entry     `json:"granted"`
	Updated []Entry     `json:"updated"`
	Revoked []Principal `json:"revoked"`
	Errors  []BulkError `json:"errors"`
}

// BulkUpdate applies a multi-principal share operation. Partial failure is
// the contract: a bad principal or unknown role lands in Errors while the
// remaining items are still applied.
func (g *Grants) BulkUpdate(ctx context.Context, resourceType, resourceID string, updated []BulkPrincipalUpdate, revoked []BulkPrincipalRevoke, grantedBy string) (BulkResult, error) {
	if err := g.validateTarget(resourceType, resourceID); err != nil {
		return BulkResult{}, err
	}

	var result BulkResult
	for _, item := range updated {
		if item.RoleIdentifier == "" {
			result.Errors = append(result.Errors, BulkError{
				PrincipalType: item.PrincipalType,
				PrincipalID:   item.PrincipalID,
				Message:       "access role identifier required",
			})
			continue
		}
		_, existsErr := g.repo.Get(ctx, item.PrincipalType, item.PrincipalID, resourceType, resourceID)
		existed := existsErr == nil
		entry, err := g.GrantRole(ctx, item.PrincipalType, item.PrincipalID, resourceType, resourceID, item.RoleIdentifier, grantedBy)
		if err != nil {
			result.Errors = append(result.Errors, BulkError{
				PrincipalType: item.PrincipalType,
				PrincipalID:   item.PrincipalID,
				Message:       err.Error(),
			})
			continue
		}
		if existed {
			result.Updated = append(result.Updated, entry)
		} else {
			result.Granted = append(result.Granted, entry)
		}
	}

	for _, item := range revoked {
		if _, err := g.Revoke(ctx, item.PrincipalType, item.PrincipalID, resourceType, resourceID); err != nil {
			result.Errors = append(result.Errors, BulkError{
				PrincipalType: item.PrincipalType,
				PrincipalID:   item.PrincipalID,
				Message:       err.Error(),
			})
			continue
		}
		result.Revoked = append(result.Revoked, Principal{Type: item.PrincipalType, ID: item.PrincipalID})
	}

	return result, nil
}

// RemoveAll deletes every entry for a resource. Resource-deletion workflows
// call it as cascading cleanup; an absent resource is a safe no-op.
func (g *Grants) RemoveAll(ctx context.Context, resourceType, resourceID string) (int64, error) {
	if err := g.validateTarget(resourceType, resourceID); err != nil {
		return 0, err
	}
	return g.repo.DeleteByResource(ctx, resourceType, resourceID)
}
