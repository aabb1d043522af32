package acl

import (
	"context"
	"fmt"
)

// Queries answers permission questions against the entry store. All methods
// are pure reads: an empty principal set yields the zero outcome rather than
// an error, while a non-positive required mask is rejected as a programmer
// error.
type Queries struct {
	repo EntryRepository
}

// NewQueries constructs the query engine.
func NewQueries(repo EntryRepository) *Queries {
	return &Queries{repo: repo}
}

func validateRequired(required PermBits) error {
	if required == 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidPermBits, required)
	}
	return nil
}

// EntriesForResource returns every entry matching the principal set for a
// resource. Public entries always match, independent of the caller's list.
func (q *Queries) EntriesForResource(ctx context.Context, principals []Principal, resourceType, resourceID string) ([]Entry, error) {
	if len(principals) == 0 {
		return nil, nil
	}
	return q.repo.FindForResource(ctx, principals, resourceType, resourceID)
}

// HasPermission reports whether some matching entry holds every bit in
// required. The mask may be composite; partial coverage does not count.
func (q *Queries) HasPermission(ctx context.Context, principals []Principal, resourceType, resourceID string, required PermBits) (bool, error) {
	if err := validateRequired(required); err != nil {
		return false, err
	}
	if len(principals) == 0 {
		return false, nil
	}
	entries, err := q.repo.FindForResource(ctx, principals, resourceType, resourceID)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry.PermBits.Has(required) {
			return true, nil
		}
	}
	return false, nil
}

// EffectivePermissions returns the union of bits across every matching
// entry: everything any membership grants.
func (q *Queries) EffectivePermissions(ctx context.Context, principals []Principal, resourceType, resourceID string) (PermBits, error) {
	if len(principals) == 0 {
		return 0, nil
	}
	entries, err := q.repo.FindForResource(ctx, principals, resourceType, resourceID)
	if err != nil {
		return 0, err
	}
	var bits PermBits
	for _, entry := range entries {
		bits |= entry.PermBits
	}
	return bits, nil
}

// EffectivePermissionsForResources computes effective bits for many
// resources in one store round trip, avoiding N+1 checks in list views.
// Every requested resource ID appears in the map, absent grants as zero.
func (q *Queries) EffectivePermissionsForResources(ctx context.Context, principals []Principal, resourceType string, resourceIDs []string) (map[string]PermBits, error) {
	result := make(map[string]PermBits, len(resourceIDs))
	for _, id := range resourceIDs {
		result[id] = 0
	}
	if len(principals) == 0 || len(resourceIDs) == 0 {
		return result, nil
	}
	entries, err := q.repo.FindForResources(ctx, principals, resourceType, resourceIDs)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		result[entry.ResourceID] |= entry.PermBits
	}
	return result, nil
}

// AccessibleResources returns the deduplicated resource IDs for which
// HasPermission would hold.
func (q *Queries) AccessibleResources(ctx context.Context, principals []Principal, resourceType string, required PermBits) ([]string, error) {
	if err := validateRequired(required); err != nil {
		return nil, err
	}
	if len(principals) == 0 {
		return nil, nil
	}
	return q.repo.FindResourceIDs(ctx, principals, resourceType, required)
}

// PubliclyAccessibleResources returns resource IDs carrying a public grant
// with every bit in required.
func (q *Queries) PubliclyAccessibleResources(ctx context.Context, resourceType string, required PermBits) ([]string, error) {
	if err := validateRequired(required); err != nil {
		return nil, err
	}
	return q.repo.FindPublicResourceIDs(ctx, resourceType, required)
}
