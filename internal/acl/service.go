package acl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Service is the permission facade the rest of the system calls. It
// validates inputs, resolves the caller's principal set and delegates to the
// grant and query engines.
//
// Error policy is asymmetric: validation errors always propagate, write
// failures always propagate, and infrastructure failures on read paths are
// logged and converted to the safe negative so a broken store denies access
// instead of crashing the request or silently permitting it.
type Service struct {
	resolver *Resolver
	queries  *Queries
	grants   *Grants
	types    ResourceTypes
	logger   *slog.Logger
}

// NewService constructs the facade.
func NewService(resolver *Resolver, queries *Queries, grants *Grants, types ResourceTypes, logger *slog.Logger) *Service {
	return &Service{resolver: resolver, queries: queries, grants: grants, types: types, logger: logger}
}

func (s *Service) validateResourceType(resourceType string) error {
	if s.types != nil && !s.types.Known(resourceType) {
		return fmt.Errorf("%w: %q", ErrInvalidResourceType, resourceType)
	}
	return nil
}

// isValidation reports whether err signals a programmer/config bug rather
// than an infrastructure failure.
func isValidation(err error) bool {
	return errors.Is(err, ErrInvalidPrincipal) ||
		errors.Is(err, ErrInvalidResourceType) ||
		errors.Is(err, ErrMissingResourceID) ||
		errors.Is(err, ErrInvalidPermBits)
}

func (s *Service) failClosed(op string, err error) {
	if s.logger != nil {
		s.logger.Error("permission read failed, denying", slog.String("op", op), slog.Any("error", err))
	}
}

func (s *Service) principals(ctx context.Context, userID, systemRole string) ([]Principal, error) {
	return s.resolver.UserPrincipals(ctx, userID, systemRole)
}

// CheckPermission reports whether the user holds every bit in required on
// the resource. Infrastructure failures deny.
func (s *Service) CheckPermission(ctx context.Context, userID, systemRole, resourceType, resourceID string, required PermBits) (bool, error) {
	if err := s.validateResourceType(resourceType); err != nil {
		return false, err
	}
	if err := validateRequired(required); err != nil {
		return false, err
	}
	principals, err := s.principals(ctx, userID, systemRole)
	if err != nil {
		if isValidation(err) {
			return false, err
		}
		s.failClosed("check", err)
		return false, nil
	}
	ok, err := s.queries.HasPermission(ctx, principals, resourceType, resourceID, required)
	if err != nil {
		if isValidation(err) {
			return false, err
		}
		s.failClosed("check", err)
		return false, nil
	}
	return ok, nil
}

// EffectivePermissions returns the union of the user's grants on the
// resource. Infrastructure failures yield zero bits.
func (s *Service) EffectivePermissions(ctx context.Context, userID, systemRole, resourceType, resourceID string) (PermBits, error) {
	if err := s.validateResourceType(resourceType); err != nil {
		return 0, err
	}
	principals, err := s.principals(ctx, userID, systemRole)
	if err != nil {
		if isValidation(err) {
			return 0, err
		}
		s.failClosed("effective", err)
		return 0, nil
	}
	bits, err := s.queries.EffectivePermissions(ctx, principals, resourceType, resourceID)
	if err != nil {
		if isValidation(err) {
			return 0, err
		}
		s.failClosed("effective", err)
		return 0, nil
	}
	return bits, nil
}

// ResourcePermissionsMap returns effective bits per resource ID in one pass.
func (s *Service) ResourcePermissionsMap(ctx context.Context, userID, systemRole, resourceType string, resourceIDs []string) (map[string]PermBits, error) {
	if err := s.validateResourceType(resourceType); err != nil {
		return nil, err
	}
	empty := func() map[string]PermBits {
		m := make(map[string]PermBits, len(resourceIDs))
		for _, id := range resourceIDs {
			m[id] = 0
		}
		return m
	}
	principals, err := s.principals(ctx, userID, systemRole)
	if err != nil {
		if isValidation(err) {
			return nil, err
		}
		s.failClosed("permissions map", err)
		return empty(), nil
	}
	result, err := s.queries.EffectivePermissionsForResources(ctx, principals, resourceType, resourceIDs)
	if err != nil {
		if isValidation(err) {
			return nil, err
		}
		s.failClosed("permissions map", err)
		return empty(), nil
	}
	return result, nil
}

// AccessibleResources lists resource IDs the user can reach with required
// bits, for pre-filtering list queries.
func (s *Service) AccessibleResources(ctx context.Context, userID, systemRole, resourceType string, required PermBits) ([]string, error) {
	if err := s.validateResourceType(resourceType); err != nil {
		return nil, err
	}
	if err := validateRequired(required); err != nil {
		return nil, err
	}
	principals, err := s.principals(ctx, userID, systemRole)
	if err != nil {
		if isValidation(err) {
			return nil, err
		}
		s.failClosed("accessible", err)
		return nil, nil
	}
	ids, err := s.queries.AccessibleResources(ctx, principals, resourceType, required)
	if err != nil {
		if isValidation(err) {
			return nil, err
		}
		s.failClosed("accessible", err)
		return nil, nil
	}
	return ids, nil
}

// PubliclyAccessibleResources lists resource IDs holding a public grant
// with required bits.
func (s *Service) PubliclyAccessibleResources(ctx context.Context, resourceType string, required PermBits) ([]string, error) {
	if err := s.validateResourceType(resourceType); err != nil {
		return nil, err
	}
	if err := validateRequired(required); err != nil {
		return nil, err
	}
	ids, err := s.queries.PubliclyAccessibleResources(ctx, resourceType, required)
	if err != nil {
		if isValidation(err) {
			return nil, err
		}
		s.failClosed("public", err)
		return nil, nil
	}
	return ids, nil
}

// ResourceEntries lists every grant on a resource for the caller's
// principal set plus public entries, for sharing views.
func (s *Service) ResourceEntries(ctx context.Context, userID, systemRole, resourceType, resourceID string) ([]Entry, error) {
	if err := s.validateResourceType(resourceType); err != nil {
		return nil, err
	}
	principals, err := s.principals(ctx, userID, systemRole)
	if err != nil {
		if isValidation(err) {
			return nil, err
		}
		s.failClosed("entries", err)
		return nil, nil
	}
	entries, err := s.queries.EntriesForResource(ctx, principals, resourceType, resourceID)
	if err != nil {
		if isValidation(err) {
			return nil, err
		}
		s.failClosed("entries", err)
		return nil, nil
	}
	return entries, nil
}

// GrantPermission grants explicit bits, or a named role when roleIdentifier
// is non-empty. Write failures always propagate.
func (s *Service) GrantPermission(ctx context.Context, in GrantInput) (Entry, error) {
	if in.RoleIdentifier != "" {
		return s.grants.GrantRole(ctx, in.PrincipalType, in.PrincipalID, in.ResourceType, in.ResourceID, in.RoleIdentifier, in.GrantedBy)
	}
	return s.grants.Grant(ctx, in)
}

// RevokePermission removes the tuple's grant, returning the deleted count.
func (s *Service) RevokePermission(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string) (int64, error) {
	return s.grants.Revoke(ctx, principalType, principalID, resourceType, resourceID)
}

// ModifyPermissionBits adjusts an existing grant's bits, nil when absent.
func (s *Service) ModifyPermissionBits(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string, add, remove PermBits) (*Entry, error) {
	return s.grants.ModifyBits(ctx, principalType, principalID, resourceType, resourceID, add, remove)
}

// BulkUpdateResourcePermissions applies a multi-principal share operation
// with per-item error reporting.
func (s *Service) BulkUpdateResourcePermissions(ctx context.Context, resourceType, resourceID string, updated []BulkPrincipalUpdate, revoked []BulkPrincipalRevoke, grantedBy string) (BulkResult, error) {
	return s.grants.BulkUpdate(ctx, resourceType, resourceID, updated, revoked, grantedBy)
}

// RemoveAllPermissions cascades entry deletion for a removed resource.
func (s *Service) RemoveAllPermissions(ctx context.Context, resourceType, resourceID string) (int64, error) {
	return s.grants.RemoveAll(ctx, resourceType, resourceID)
}
