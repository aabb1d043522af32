package acl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntryRepository defines persistence for ACL entries. Implementations must
// enforce the one-entry-per-tuple invariant with an atomic upsert so the
// engine stays correct across multiple hosting processes.
type EntryRepository interface {
	// FindForResource returns entries matching any of the principals for a
	// resource, plus every public entry for it.
	FindForResource(ctx context.Context, principals []Principal, resourceType, resourceID string) ([]Entry, error)
	// FindForResources is the batched variant over many resource IDs.
	FindForResources(ctx context.Context, principals []Principal, resourceType string, resourceIDs []string) ([]Entry, error)
	// FindResourceIDs returns distinct resource IDs where some matching entry
	// carries every bit in required.
	FindResourceIDs(ctx context.Context, principals []Principal, resourceType string, required PermBits) ([]string, error)
	// FindPublicResourceIDs returns resource IDs carrying a public entry with
	// every bit in required.
	FindPublicResourceIDs(ctx context.Context, resourceType string, required PermBits) ([]string, error)

	// Get fetches the single entry for a tuple, or ErrEntryNotFound.
	Get(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string) (Entry, error)
	// Upsert inserts the entry or replaces bits, role, grantor and timestamp
	// of the existing tuple atomically.
	Upsert(ctx context.Context, entry Entry) (Entry, error)
	// UpdateBits overwrites the bits of an existing tuple, or returns
	// ErrEntryNotFound without creating anything.
	UpdateBits(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string, bits PermBits) (Entry, error)
	// Delete removes the tuple's entry, returning the deleted count (0 or 1).
	Delete(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string) (int64, error)
	// DeleteByResource removes every entry for a resource, returning the count.
	DeleteByResource(ctx context.Context, resourceType, resourceID string) (int64, error)
}

// PGEntryRepository implements EntryRepository on PostgreSQL. The
// acl_entries table carries a unique index on
// (principal_type, principal_id, resource_type, resource_id); the public
// principal stores an empty principal_id so the index covers it too.
type PGEntryRepository struct {
	pool *pgxpool.Pool
}

// NewEntryRepository constructs a PostgreSQL-backed repository.
func NewEntryRepository(pool *pgxpool.Pool) *PGEntryRepository {
	return &PGEntryRepository{pool: pool}
}

var _ EntryRepository = (*PGEntryRepository)(nil)

const entryColumns = `id, principal_type, principal_id, resource_type, resource_id, perm_bits, role_identifier, granted_by, granted_at, inherited_from`

// principalPredicate builds the OR clause matching any principal in the set
// or the public principal. Argument numbering starts after offset.
func principalPredicate(principals []Principal, offset int) (string, []any) {
	clauses := []string{fmt.Sprintf("principal_type = '%s'", PrincipalPublic)}
	args := make([]any, 0, len(principals)*2)
	n := offset
	for _, p := range principals {
		if p.Type == PrincipalPublic {
			continue
		}
		clauses = append(clauses, fmt.Sprintf("(principal_type = $%d AND principal_id = $%d)", n+1, n+2))
		args = append(args, string(p.Type), p.ID)
		n += 2
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}

// FindForResource returns all entries relevant to the principal set.
func (r *PGEntryRepository) FindForResource(ctx context.Context, principals []Principal, resourceType, resourceID string) ([]Entry, error) {
	predicate, args := principalPredicate(principals, 2)
	query := `SELECT ` + entryColumns + ` FROM acl_entries WHERE resource_type = $1 AND resource_id = $2 AND ` + predicate
	rows, err := r.pool.Query(ctx, query, append([]any{resourceType, resourceID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("acl: find entries for resource: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// FindForResources returns all relevant entries across a batch of resources.
func (r *PGEntryRepository) FindForResources(ctx context.Context, principals []Principal, resourceType string, resourceIDs []string) ([]Entry, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}
	predicate, args := principalPredicate(principals, 2)
	query := `SELECT ` + entryColumns + ` FROM acl_entries WHERE resource_type = $1 AND resource_id = ANY($2) AND ` + predicate
	rows, err := r.pool.Query(ctx, query, append([]any{resourceType, resourceIDs}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("acl: find entries for resources: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// FindResourceIDs filters at the data layer: the bit test runs in SQL so
// list views never page full entry sets through the application.
func (r *PGEntryRepository) FindResourceIDs(ctx context.Context, principals []Principal, resourceType string, required PermBits) ([]string, error) {
	predicate, args := principalPredicate(principals, 2)
	query := `SELECT DISTINCT resource_id FROM acl_entries WHERE resource_type = $1 AND perm_bits & $2 = $2 AND ` + predicate
	rows, err := r.pool.Query(ctx, query, append([]any{resourceType, int64(required)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("acl: find accessible resources: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// FindPublicResourceIDs returns resources carrying a matching public grant.
func (r *PGEntryRepository) FindPublicResourceIDs(ctx context.Context, resourceType string, required PermBits) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT resource_id FROM acl_entries WHERE resource_type = $1 AND perm_bits & $2 = $2 AND principal_type = '%s'`, PrincipalPublic)
	rows, err := r.pool.Query(ctx, query, resourceType, int64(required))
	if err != nil {
		return nil, fmt.Errorf("acl: find public resources: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// Get fetches one tuple's entry.
func (r *PGEntryRepository) Get(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string) (Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM acl_entries
		WHERE principal_type = $1 AND principal_id = $2 AND resource_type = $3 AND resource_id = $4`
	row := r.pool.QueryRow(ctx, query, string(principalType), principalID, resourceType, resourceID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("acl: get entry: %w", err)
	}
	return entry, nil
}

// Upsert relies on the tuple unique index for replace-on-conflict semantics.
func (r *PGEntryRepository) Upsert(ctx context.Context, entry Entry) (Entry, error) {
	query := `INSERT INTO acl_entries
			(principal_type, principal_id, resource_type, resource_id, perm_bits, role_identifier, granted_by, granted_at, inherited_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (principal_type, principal_id, resource_type, resource_id)
		DO UPDATE SET
			perm_bits = EXCLUDED.perm_bits,
			role_identifier = EXCLUDED.role_identifier,
			granted_by = EXCLUDED.granted_by,
			granted_at = EXCLUDED.granted_at,
			inherited_from = EXCLUDED.inherited_from
		RETURNING ` + entryColumns
	row := r.pool.QueryRow(ctx, query,
		string(entry.PrincipalType), entry.PrincipalID, entry.ResourceType, entry.ResourceID,
		int64(entry.PermBits), entry.RoleIdentifier, entry.GrantedBy, entry.GrantedAt.UTC(), entry.InheritedFrom)
	stored, err := scanEntry(row)
	if err != nil {
		return Entry{}, fmt.Errorf("acl: upsert entry: %w", err)
	}
	return stored, nil
}

// UpdateBits mutates bits in place and never creates a missing tuple.
func (r *PGEntryRepository) UpdateBits(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string, bits PermBits) (Entry, error) {
	query := `UPDATE acl_entries SET perm_bits = $5
		WHERE principal_type = $1 AND principal_id = $2 AND resource_type = $3 AND resource_id = $4
		RETURNING ` + entryColumns
	row := r.pool.QueryRow(ctx, query, string(principalType), principalID, resourceType, resourceID, int64(bits))
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("acl: update entry bits: %w", err)
	}
	return entry, nil
}

// Delete removes one tuple's entry.
func (r *PGEntryRepository) Delete(ctx context.Context, principalType PrincipalType, principalID, resourceType, resourceID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM acl_entries
		WHERE principal_type = $1 AND principal_id = $2 AND resource_type = $3 AND resource_id = $4`,
		string(principalType), principalID, resourceType, resourceID)
	if err != nil {
		return 0, fmt.Errorf("acl: delete entry: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteByResource removes every entry for a resource.
func (r *PGEntryRepository) DeleteByResource(ctx context.Context, resourceType, resourceID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM acl_entries WHERE resource_type = $1 AND resource_id = $2`,
		resourceType, resourceID)
	if err != nil {
		return 0, fmt.Errorf("acl: delete entries for resource: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		entry   Entry
		ptype   string
		bits    int64
		granted time.Time
	)
	if err := row.Scan(&entry.ID, &ptype, &entry.PrincipalID, &entry.ResourceType, &entry.ResourceID,
		&bits, &entry.RoleIdentifier, &entry.GrantedBy, &granted, &entry.InheritedFrom); err != nil {
		return Entry{}, err
	}
	entry.PrincipalType = PrincipalType(ptype)
	entry.PermBits = PermBits(bits)
	entry.GrantedAt = granted
	return entry, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("acl: scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("acl: iterate entries: %w", err)
	}
	return entries, nil
}

func scanIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("acl: scan resource id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("acl: iterate resource ids: %w", err)
	}
	return ids, nil
}
