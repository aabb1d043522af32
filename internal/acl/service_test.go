package acl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ai/meridian/internal/resources"
)

type memoryEntryRepo struct {
	entries map[string]Entry
	nextID  int64
}

func newMemoryEntryRepo() *memoryEntryRepo {
	return &memoryEntryRepo{entries: make(map[string]Entry)}
}

func tupleKey(principalType PrincipalType, principalID, resourceType, resourceID string) string {
	return string(principalType) + "|" + principalID + "|" + resourceType + "|" + resourceID
}

func matchesPrincipal(entry Entry, principals []Principal) bool {
	if entry.PrincipalType == PrincipalPublic {
		return true
	}
	for _, p := range principals {
		if entry.PrincipalType == p.Type && entry.PrincipalID == p.ID {
			return true
		}
	}
	return false
}

func (r *memoryEntryRepo) FindForResource(ctx context.Context, principals []Principal, resourceType, resourceID string) ([]Entry, error) {
	var out []Entry
	for _, entry := range r.entries {
		if entry.ResourceType != resourceType || entry.ResourceID != resourceID {
			continue
		}
		if matchesPrincipal(entry, principals) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *memoryEntryRepo) FindForResources(ctx context.Context, principals []Principal, resourceType string, resourceIDs []string) ([]Entry, error) {
	wanted := make(map[string]struct{}, len(resourceIDs))
	for _, id := range resourceIDs {
		wanted[id] = struct{}{}
	}
	var out []Entry
	for _, entry := range r.entries {
		if entry.ResourceType != resourceType {
			continue
		}
		if _, ok := wanted[entry.ResourceID]; !ok {
			continue
		}
		if matchesPrincipal(entry, principals) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *memoryEntryRepo) FindResourceIDs(ctx context.Context, principals []Principal, resourceType string, required PermBits) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, entry := range r.entries {
		if entry.ResourceType != resourceType || !entry.PermBits.Has(required) {
			continue
		}
		if !matchesPrincipal(entry, principals) {
			continue
		}
		if _, dup := seen[entry.ResourceID]; dup {
			continue
		}
		seen[entry.ResourceID] = struct{}{}
		out = append(out, entry.ResourceID)
	}
	return out, nil
}

func (r *memoryEntryRepo) FindPublicResourceIDs(ctx context.Context, resourceType string, required PermBits) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, entry := range r.entries {
		if entry.PrincipalType != PrincipalPublic || entry.ResourceType != resourceType {
			continue
		}
		if !entry.PermBits.Has(required) {
			continue
		}
		if _, dup := seen[entry.ResourceID]; dup {
			continue
		}
		seen[entry.ResourceID] = struct{}{}
		out = append(out, entry.ResourceID)
	}
	return out, nil
}

func (r *memoryEntryRepo) Get(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string) (Entry, error) {
	entry, ok := r.entries[tupleKey(principalType, principalID, resourceType, resourceID)]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return entry, nil
}

func (r *memoryEntryRepo) Upsert(ctx context.Context, entry Entry) (Entry, error) {
	key := tupleKey(entry.PrincipalType, entry.PrincipalID, entry.ResourceType, entry.ResourceID)
	if existing, ok := r.entries[key]; ok {
		entry.ID = existing.ID
	} else {
		r.nextID++
		entry.ID = r.nextID
	}
	r.entries[key] = entry
	return entry, nil
}

func (r *memoryEntryRepo) UpdateBits(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string, bits PermBits) (Entry, error) {
	key := tupleKey(principalType, principalID, resourceType, resourceID)
	entry, ok := r.entries[key]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	entry.PermBits = bits
	r.entries[key] = entry
	return entry, nil
}

func (r *memoryEntryRepo) Delete(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string) (int64, error) {
	key := tupleKey(principalType, principalID, resourceType, resourceID)
	if _, ok := r.entries[key]; !ok {
		return 0, nil
	}
	delete(r.entries, key)
	return 1, nil
}

func (r *memoryEntryRepo) DeleteByResource(ctx context.Context, resourceType, resourceID string) (int64, error) {
	var deleted int64
	for key, entry := range r.entries {
		if entry.ResourceType == resourceType && entry.ResourceID == resourceID {
			delete(r.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

var _ EntryRepository = (*memoryEntryRepo)(nil)

// failingEntryRepo simulates a broken store on every operation.
type failingEntryRepo struct{}

var errStoreDown = errors.New("store down")

func (failingEntryRepo) FindForResource(ctx context.Context, principals []Principal, resourceType, resourceID string) ([]Entry, error) {
	return nil, errStoreDown
}

func (failingEntryRepo) FindForResources(ctx context.Context, principals []Principal, resourceType string, resourceIDs []string) ([]Entry, error) {
	return nil, errStoreDown
}

func (failingEntryRepo) FindResourceIDs(ctx context.Context, principals []Principal, resourceType string, required PermBits) ([]string, error) {
	return nil, errStoreDown
}

func (failingEntryRepo) FindPublicResourceIDs(ctx context.Context, resourceType string, required PermBits) ([]string, error) {
	return nil, errStoreDown
}

func (failingEntryRepo) Get(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string) (Entry, error) {
	return Entry{}, errStoreDown
}

func (failingEntryRepo) Upsert(ctx context.Context, entry Entry) (Entry, error) {
	return Entry{}, errStoreDown
}

func (failingEntryRepo) UpdateBits(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string, bits PermBits) (Entry, error) {
	return Entry{}, errStoreDown
}

func (failingEntryRepo) Delete(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string) (int64, error) {
	return 0, errStoreDown
}

func (failingEntryRepo) DeleteByResource(ctx context.Context, resourceType, resourceID string) (int64, error) {
	return 0, errStoreDown
}

type memoryGroups struct {
	byUser map[string][]string
	err    error
}

func (g *memoryGroups) GroupIDsForUser(ctx context.Context, userID string) ([]string, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.byUser[userID], nil
}

type memoryRoleDirectory map[string]RoleGrant

func (d memoryRoleDirectory) RoleGrant(ctx context.Context, identifier string) (RoleGrant, error) {
	role, ok := d[identifier]
	if !ok {
		return RoleGrant{}, errors.New("role not found")
	}
	return role, nil
}

func newTestService(repo EntryRepository, groups GroupMembership, roles RoleDirectory) *Service {
	types := resources.NewTypeRegistry()
	resolver := NewResolver(groups)
	queries := NewQueries(repo)
	grants := NewGrants(repo, roles, types)
	return NewService(resolver, queries, grants, types, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestServiceCheckPermissionThroughGroup(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryEntryRepo()
	groups := &memoryGroups{byUser: map[string][]string{"u1": {"g1"}}}
	svc := newTestService(repo, groups, nil)

	_, err := svc.GrantPermission(ctx, GrantInput{
		PrincipalType: PrincipalGroup,
		PrincipalID:   "g1",
		ResourceType:  resources.TypeAgent,
		ResourceID:    "a1",
		Bits:          BitsEditor,
		GrantedBy:     "admin",
	})
	require.NoError(t, err)

	allowed, err := svc.CheckPermission(ctx, "u1", "", resources.TypeAgent, "a1", PermEdit)
	require.NoError(t, err)
	require.True(t, allowed)

	// A user outside the group gets nothing.
	allowed, err = svc.CheckPermission(ctx, "u2", "", resources.TypeAgent, "a1", PermEdit)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestServiceCheckPermissionThroughRolePrincipal(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryEntryRepo()
	svc := newTestService(repo, &memoryGroups{}, nil)

	_, err := svc.GrantPermission(ctx, GrantInput{
		PrincipalType: PrincipalRole,
		PrincipalID:   "analyst",
		ResourceType:  resources.TypeFile,
		ResourceID:    "f1",
		Bits:          PermView,
		GrantedBy:     "admin",
	})
	require.NoError(t, err)

	allowed, err := svc.CheckPermission(ctx, "u1", "analyst", resources.TypeFile, "f1", PermView)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = svc.CheckPermission(ctx, "u1", "", resources.TypeFile, "f1", PermView)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestServiceRejectsUnknownResourceType(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemoryEntryRepo(), &memoryGroups{}, nil)

	_, err := svc.CheckPermission(ctx, "u1", "", "WIDGET", "w1", PermView)
	require.ErrorIs(t, err, ErrInvalidResourceType)

	_, err = svc.EffectivePermissions(ctx, "u1", "", "WIDGET", "w1")
	require.ErrorIs(t, err, ErrInvalidResourceType)

	_, err = svc.AccessibleResources(ctx, "u1", "", "WIDGET", PermView)
	require.ErrorIs(t, err, ErrInvalidResourceType)
}

func TestServiceRejectsZeroRequiredBits(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemoryEntryRepo(), &memoryGroups{}, nil)

	_, err := svc.CheckPermission(ctx, "u1", "", resources.TypeAgent, "a1", 0)
	require.ErrorIs(t, err, ErrInvalidPermBits)

	_, err = svc.AccessibleResources(ctx, "u1", "", resources.TypeAgent, 0)
	require.ErrorIs(t, err, ErrInvalidPermBits)

	_, err = svc.PubliclyAccessibleResources(ctx, resources.TypeAgent, 0)
	require.ErrorIs(t, err, ErrInvalidPermBits)
}

func TestServiceFailsClosedOnBrokenStore(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(failingEntryRepo{}, &memoryGroups{}, nil)

	allowed, err := svc.CheckPermission(ctx, "u1", "", resources.TypeAgent, "a1", PermView)
	require.NoError(t, err)
	require.False(t, allowed)

	bits, err := svc.EffectivePermissions(ctx, "u1", "", resources.TypeAgent, "a1")
	require.NoError(t, err)
	require.Equal(t, PermBits(0), bits)

	ids, err := svc.AccessibleResources(ctx, "u1", "", resources.TypeAgent, PermView)
	require.NoError(t, err)
	require.Empty(t, ids)

	perms, err := svc.ResourcePermissionsMap(ctx, "u1", "", resources.TypeAgent, []string{"a1", "a2"})
	require.NoError(t, err)
	require.Equal(t, map[string]PermBits{"a1": 0, "a2": 0}, perms)
}

func TestServiceFailsClosedOnGroupExpansionError(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryEntryRepo()
	groups := &memoryGroups{err: errStoreDown}
	svc := newTestService(repo, groups, nil)

	allowed, err := svc.CheckPermission(ctx, "u1", "", resources.TypeAgent, "a1", PermView)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestServiceWriteErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(failingEntryRepo{}, &memoryGroups{}, nil)

	_, err := svc.GrantPermission(ctx, GrantInput{
		PrincipalType: PrincipalUser,
		PrincipalID:   "u2",
		ResourceType:  resources.TypeAgent,
		ResourceID:    "a1",
		Bits:          PermView,
		GrantedBy:     "u1",
	})
	require.ErrorIs(t, err, errStoreDown)

	_, err = svc.RemoveAllPermissions(ctx, resources.TypeAgent, "a1")
	require.ErrorIs(t, err, errStoreDown)
}

func TestServiceGrantPermissionRoutesRoleIdentifier(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryEntryRepo()
	roles := memoryRoleDirectory{
		"AGENT_EDITOR": {Identifier: "AGENT_EDITOR", ResourceType: resources.TypeAgent, Bits: BitsEditor},
	}
	svc := newTestService(repo, &memoryGroups{}, roles)

	entry, err := svc.GrantPermission(ctx, GrantInput{
		PrincipalType:  PrincipalUser,
		PrincipalID:    "u2",
		ResourceType:   resources.TypeAgent,
		ResourceID:     "a1",
		GrantedBy:      "u1",
		RoleIdentifier: "AGENT_EDITOR",
	})
	require.NoError(t, err)
	require.Equal(t, BitsEditor, entry.PermBits)
	require.Equal(t, "AGENT_EDITOR", entry.RoleIdentifier)
}
