package accessroles

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
	"strings"

	"github.com/meridian-ai/meridian/internal/acl"
)

// ResourceTypes lists the known resource types for seeding.
type ResourceTypes interface {
	All() []string
}

// Service orchestrates the access role registry.
type Service struct {
	repo   Repository
	types  ResourceTypes
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, types ResourceTypes, logger *slog.Logger) *Service {
	return &Service{repo: repo, types: types, logger: logger}
}

// defaultBundles are installed for every resource type that has no roles yet.
var defaultBundles = []struct {
	suffix string
	name   string
	bits   acl.PermBits
}{
	{"VIEWER", "Viewer", acl.BitsViewer},
	{"EDITOR", "Editor", acl.BitsEditor},
	{"OWNER", "Owner", acl.BitsOwner},
}

// RoleIdentifier builds the canonical identifier for a seeded bundle,
// e.g. AGENT + VIEWER -> AGENT_VIEWER.
func RoleIdentifier(resourceType, suffix string) string {
	return strings.ToUpper(resourceType) + "_" + suffix
}

// SeedDefaults idempotently installs the VIEWER/EDITOR/OWNER bundles for
// each known resource type, skipping types that already carry roles.
func (s *Service) SeedDefaults(ctx context.Context) error {
	for _, resourceType := range s.types.All() {
		count, err := s.repo.CountByResourceType(ctx, resourceType)
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		for _, bundle := range defaultBundles {
			role := AccessRole{
				Identifier:   RoleIdentifier(resourceType, bundle.suffix),
				Name:         bundle.name,
				Description:  fmt.Sprintf("%s access to %s resources", bundle.name, resourceType),
				ResourceType: resourceType,
				PermBits:     bundle.bits,
			}
			if err := s.repo.Create(ctx, role); err != nil {
				return err
			}
		}
		if s.logger != nil {
			s.logger.Info("seeded default access roles", slog.String("resource_type", resourceType))
		}
	}
	return nil
}

// RoleByIdentifier fetches one role.
func (s *Service) RoleByIdentifier(ctx context.Context, identifier string) (AccessRole, error) {
	if strings.TrimSpace(identifier) == "" {
		return AccessRole{}, ErrRoleNotFound
	}
	return s.repo.GetByIdentifier(ctx, identifier)
}

// RolesForResourceType lists the roles of one resource type.
func (s *Service) RolesForResourceType(ctx context.Context, resourceType string) ([]AccessRole, error) {
	return s.repo.ListByResourceType(ctx, resourceType)
}

// RoleByPermissions returns the role whose bits equal the mask exactly.
func (s *Service) RoleByPermissions(ctx context.Context, resourceType string, mask acl.PermBits) (AccessRole, error) {
	roles, err := s.repo.ListByResourceType(ctx, resourceType)
	if err != nil {
		return AccessRole{}, err
	}
	for _, role := range roles {
		if role.PermBits == mask {
			return role, nil
		}
	}
	return AccessRole{}, ErrRoleNotFound
}

// RoleForPermissions labels a mask for display: the exact match when one
// exists, otherwise the subset role covering the most bits, ties broken by
// descending bits. Never consulted for access decisions.
func (s *Service) RoleForPermissions(ctx context.Context, resourceType string, mask acl.PermBits) (AccessRole, error) {
	roles, err := s.repo.ListByResourceType(ctx, resourceType)
	if err != nil {
		return AccessRole{}, err
	}
	var (
		best      AccessRole
		bestCount = -1
	)
	for _, role := range roles {
		if role.PermBits == mask {
			return role, nil
		}
		if mask.Has(role.PermBits) {
			count := bits.OnesCount32(uint32(role.PermBits))
			if count > bestCount || (count == bestCount && role.PermBits > best.PermBits) {
				best = role
				bestCount = count
			}
		}
	}
	if bestCount < 0 {
		return AccessRole{}, ErrRoleNotFound
	}
	return best, nil
}

// RoleGrant implements the grant engine's role directory port.
func (s *Service) RoleGrant(ctx context.Context, identifier string) (acl.RoleGrant, error) {
	role, err := s.RoleByIdentifier(ctx, identifier)
	if err != nil {
		return acl.RoleGrant{}, err
	}
	return acl.RoleGrant{
		Identifier:   role.Identifier,
		ResourceType: role.ResourceType,
		Bits:         role.PermBits,
	}, nil
}

var _ acl.RoleDirectory = (*Service)(nil)
