package acl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ai/meridian/internal/resources"
)

func newTestGrants(repo EntryRepository, roles RoleDirectory) *Grants {
	g := NewGrants(repo, roles, resources.NewTypeRegistry())
	g.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }
	return g
}

func TestGrantReplacesExistingEntry(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryEntryRepo()
	grants := newTestGrants(repo, nil)

	first, err := grants.Grant(ctx, GrantInput{
		PrincipalType: PrincipalUser,
		PrincipalID:   "u2",
		ResourceType:  resources.TypeAgent,
		ResourceID:    "a1",
		Bits:          BitsOwner,
		GrantedBy:     "u1",
	})
	require.NoError(t, err)

	// Re-granting the same tuple downgrades in place rather than adding a
	// second entry or accumulating bits.
	second, err := grants.Grant(ctx, GrantInput{
		PrincipalType: PrincipalUser,
		PrincipalID:   "u2",
		ResourceType:  resources.TypeAgent,
		ResourceID:    "a1",
		Bits:          PermView,
		GrantedBy:     "u1",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, PermView, second.PermBits)
	require.Len(t, repo.entries, 1)

	stored, err := repo.Get(ctx, PrincipalUser, "u2", resources.TypeAgent, "a1")
	require.NoError(t, err)
	require.Equal(t, PermView, stored.PermBits)
}

func TestGrantValidation(t *testing.T) {
	ctx := context.Background()
	grants := newTestGrants(newMemoryEntryRepo(), nil)

	_, err := grants.Grant(ctx, GrantInput{
		PrincipalType: PrincipalUser,
		PrincipalID:   "u2",
		ResourceType:  resources.TypeAgent,
		ResourceID:    "a1",
	})
	require.ErrorIs(t, err, ErrInvalidPermBits)

	_, err = grants.Grant(ctx, GrantInput{
		PrincipalType: PrincipalUser,
		ResourceType:  resources.TypeAgent,
		ResourceID:    "a1",
		Bits:          PermView,
	})
	require.ErrorIs(t, err, ErrInvalidPrincipal)

	_, err = grants.Grant(ctx, GrantInput{
		PrincipalType: PrincipalPublic,
		PrincipalID:   "nobody",
		ResourceType:  resources.TypeAgent,
		ResourceID:    "a1",
		Bits:          PermView,
	})
	require.ErrorIs(t, err, ErrInvalidPrincipal)

	_, err = grants.Grant(ctx, GrantInput{
		PrincipalType: PrincipalUser,
		PrincipalID:   "u2",
		ResourceType:  "WIDGET",
		ResourceID:    "w1",
		Bits:          PermView,
	})
	require.ErrorIs(t, err, ErrInvalidResourceType)

	_, err = grants.Grant(ctx, GrantInput{
		PrincipalType: PrincipalUser,
		PrincipalID:   "u2",
		ResourceType:  resources.TypeAgent,
		Bits:          PermView,
	})
	require.ErrorIs(t, err, ErrMissingResourceID)
}

func TestGrantPublicPrincipal(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryEntryRepo()
	grants := newTestGrants(repo, nil)

	entry, err := grants.Grant(ctx, GrantInput{
		PrincipalType: PrincipalPublic,
		ResourceType:  resources.TypeFile,
		ResourceID:    "f1",
		Bits:          PermView,
		GrantedBy:     "u1",
	})
	require.NoError(t, err)
	require.Equal(t, PrincipalPublic, entry.PrincipalType)
	require.Empty(t, entry.PrincipalID)
}

func TestGrantRoleCopiesBits(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryEntryRepo()
	roles := memoryRoleDirectory{
		"AGENT_VIEWER": {Identifier: "AGENT_VIEWER", ResourceType: resources.TypeAgent, Bits: BitsViewer},
	}
	grants := newTestGrants(repo, roles)

	entry, err := grants.GrantRole(ctx, PrincipalUser, "u2", resources.TypeAgent, "a1", "AGENT_VIEWER", "u1")
	require.NoError(t, err)
	require.Equal(t, BitsViewer, entry.PermBits)
	require.Equal(t, "AGENT_VIEWER", entry.RoleIdentifier)
}

func TestGrantRoleResourceTypeMismatch(t *testing.T) {
	ctx := context.Background()
	roles := memoryRoleDirectory{
		"FILE_VIEWER": {Identifier: "FILE_VIEWER", ResourceType: resources.TypeFile, Bits: BitsViewer},
	}
	grants := newTestGrants(newMemoryEntryRepo(), roles)

	_, err := grants.GrantRole(ctx, PrincipalUser, "u2", resources.TypeAgent, "a1", "FILE_VIEWER", "u1")
	require.ErrorIs(t, err, ErrInvalidResourceType)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryEntryRepo()
	grants := newTestGrants(repo, nil)

	_, err := grants.Grant(ctx, GrantInput{
		PrincipalType: PrincipalUser,
		PrincipalID:   "u2",
		ResourceType:  resources.TypeAgent,
		ResourceID:    "a1",
		Bits:          PermView,
		GrantedBy:     "u1",
	})
	require.NoError(t, err)

	deleted, err := grants.Revoke(ctx, PrincipalUser, "u2", resources.TypeAgent, "a1")
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	// Revoking an absent grant is a no-op, not an error.
	deleted, err = grants.Revoke(ctx, PrincipalUser, "u2", resources.TypeAgent, "a1")
	require.NoError(t, err)
	require.EqualValues(t, 0, deleted)
}

func TestModifyBits(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryEntryRepo()
	grants := newTestGrants(repo, nil)

	_, err := grants.Grant(ctx, GrantInput{
		PrincipalType: PrincipalUser,
		PrincipalID:   "u2",
		ResourceType:  resources.TypeAgent,
		ResourceID:    "a1",
		Bits:          PermView | PermDelete,
		GrantedBy:     "u1",
	})
	require.NoError(t, err)

	entry, err := grants.ModifyBits(ctx, PrincipalUser, "u2", resources.TypeAgent, "a1", PermEdit, PermDelete)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, PermView|PermEdit, entry.PermBits)
}

func TestModifyBitsMissingEntry(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryEntryRepo()
	grants := newTestGrants(repo, nil)

	entry, err := grants.ModifyBits(ctx, PrincipalUser, "u2", resources.TypeAgent, "a1", PermEdit, 0)
	require.NoError(t, err)
	require.Nil(t, entry)
	require.Empty(t, repo.entries)
}

func TestBulkUpdatePartialFailure(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryEntryRepo()
	roles := memoryRoleDirectory{
		"AGENT_VIEWER": {Identifier: "AGENT_VIEWER", ResourceType: resources.TypeAgent, Bits: BitsViewer},
		"AGENT_OWNER":  {Identifier: "AGENT_OWNER", ResourceType: resources.TypeAgent, Bits: BitsOwner},
	}
	grants := newTestGrants(repo, roles)

	// u3 already holds a grant so the bulk run classifies it as updated.
	_, err := grants.GrantRole(ctx, PrincipalUser, "u3", resources.TypeAgent, "a1", "AGENT_VIEWER", "u1")
	require.NoError(t, err)
	_, err = grants.Grant(ctx, GrantInput{
		PrincipalType: PrincipalUser,
		PrincipalID:   "u4",
		ResourceType:  resources.TypeAgent,
		ResourceID:    "a1",
		Bits:          PermView,
		GrantedBy:     "u1",
	})
	require.NoError(t, err)

	result, err := grants.BulkUpdate(ctx, resources.TypeAgent, "a1",
		[]BulkPrincipalUpdate{
			{PrincipalType: PrincipalUser, PrincipalID: "u2", RoleIdentifier: "AGENT_VIEWER"},
			{PrincipalType: PrincipalUser, PrincipalID: "u3", RoleIdentifier: "AGENT_OWNER"},
			{PrincipalType: PrincipalUser, PrincipalID: "u5", RoleIdentifier: "NO_SUCH_ROLE"},
		},
		[]BulkPrincipalRevoke{
			{PrincipalType: PrincipalUser, PrincipalID: "u4"},
		},
		"u1")
	require.NoError(t, err)

	require.Len(t, result.Granted, 1)
	require.Equal(t, "u2", result.Granted[0].PrincipalID)
	require.Len(t, result.Updated, 1)
	require.Equal(t, "u3", result.Updated[0].PrincipalID)
	require.Equal(t, BitsOwner, result.Updated[0].PermBits)
	require.Len(t, result.Revoked, 1)
	require.Equal(t, "u4", result.Revoked[0].ID)
	require.Len(t, result.Errors, 1)
	require.Equal(t, "u5", result.Errors[0].PrincipalID)

	// The failed item left no entry behind; the rest were applied.
	_, err = repo.Get(ctx, PrincipalUser, "u5", resources.TypeAgent, "a1")
	require.ErrorIs(t, err, ErrEntryNotFound)
	_, err = repo.Get(ctx, PrincipalUser, "u4", resources.TypeAgent, "a1")
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRemoveAll(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryEntryRepo()
	grants := newTestGrants(repo, nil)

	for _, principal := range []string{"u2", "u3", "u4"} {
		_, err := grants.Grant(ctx, GrantInput{
			PrincipalType: PrincipalUser,
			PrincipalID:   principal,
			ResourceType:  resources.TypeAgent,
			ResourceID:    "a1",
			Bits:          PermView,
			GrantedBy:     "u1",
		})
		require.NoError(t, err)
	}
	_, err := grants.Grant(ctx, GrantInput{
		PrincipalType: PrincipalUser,
		PrincipalID:   "u2",
		ResourceType:  resources.TypeAgent,
		ResourceID:    "a2",
		Bits:          PermView,
		GrantedBy:     "u1",
	})
	require.NoError(t, err)

	deleted, err := grants.RemoveAll(ctx, resources.TypeAgent, "a1")
	require.NoError(t, err)
	require.EqualValues(t, 3, deleted)
	require.Len(t, repo.entries, 1)

	deleted, err = grants.RemoveAll(ctx, resources.TypeAgent, "a1")
	require.NoError(t, err)
	require.EqualValues(t, 0, deleted)
}
