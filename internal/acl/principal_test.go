package acl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserPrincipalsOrdering(t *testing.T) {
	ctx := context.Background()
	resolver := NewResolver(&memoryGroups{byUser: map[string][]string{
		"u1": {"g1", "g2"},
	}})

	principals, err := resolver.UserPrincipals(ctx, "u1", "analyst")
	require.NoError(t, err)
	require.Equal(t, []Principal{
		{Type: PrincipalUser, ID: "u1"},
		{Type: PrincipalRole, ID: "analyst"},
		{Type: PrincipalGroup, ID: "g1"},
		{Type: PrincipalGroup, ID: "g2"},
		{Type: PrincipalPublic},
	}, principals)
}

func TestUserPrincipalsWithoutRoleOrGroups(t *testing.T) {
	ctx := context.Background()
	resolver := NewResolver(&memoryGroups{})

	principals, err := resolver.UserPrincipals(ctx, "u1", "")
	require.NoError(t, err)
	require.Equal(t, []Principal{
		{Type: PrincipalUser, ID: "u1"},
		{Type: PrincipalPublic},
	}, principals)
}

func TestUserPrincipalsRequiresUserID(t *testing.T) {
	resolver := NewResolver(&memoryGroups{})
	_, err := resolver.UserPrincipals(context.Background(), "", "analyst")
	require.ErrorIs(t, err, ErrInvalidPrincipal)
}

func TestUserPrincipalsGroupLookupError(t *testing.T) {
	resolver := NewResolver(&memoryGroups{err: errStoreDown})
	_, err := resolver.UserPrincipals(context.Background(), "u1", "")
	require.ErrorIs(t, err, errStoreDown)
}

func TestPrincipalValidate(t *testing.T) {
	require.NoError(t, Principal{Type: PrincipalUser, ID: "u1"}.Validate())
	require.NoError(t, Principal{Type: PrincipalPublic}.Validate())
	require.ErrorIs(t, Principal{Type: PrincipalUser}.Validate(), ErrInvalidPrincipal)
	require.ErrorIs(t, Principal{Type: PrincipalPublic, ID: "u1"}.Validate(), ErrInvalidPrincipal)
	require.ErrorIs(t, Principal{Type: "robot", ID: "r1"}.Validate(), ErrInvalidPrincipal)
}

func TestPermBitsHas(t *testing.T) {
	require.True(t, BitsOwner.Has(PermView|PermShare))
	require.True(t, BitsEditor.Has(PermEdit))
	require.False(t, BitsEditor.Has(PermEdit|PermDelete))
	require.False(t, PermBits(0).Has(PermView))
	// Every mask trivially contains the empty mask.
	require.True(t, PermView.Has(0))
}
