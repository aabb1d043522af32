package resources

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknownResource indicates the resource could not be resolved.
var ErrUnknownResource = errors.New("resources: unknown resource")

// Resource is the resolved identity of a protected domain object.
type Resource struct {
	ID       string
	AuthorID string
}

// Lookup resolves an external resource identifier to its internal identity
// and recorded author. Each resource type supplies its own implementation;
// the ACL engine has no knowledge of how resources are persisted.
type Lookup interface {
	Resolve(ctx context.Context, externalID string) (Resource, error)
}

// LookupRegistry maps resource types to their Lookup collaborators.
type LookupRegistry struct {
	mu      sync.RWMutex
	lookups map[string]Lookup
}

// NewLookupRegistry builds an empty lookup registry.
func NewLookupRegistry() *LookupRegistry {
	return &LookupRegistry{lookups: make(map[string]Lookup)}
}

// Register installs the lookup for a resource type, replacing any previous one.
func (r *LookupRegistry) Register(resourceType string, lookup Lookup) {
	r.mu.Lock()
	r.lookups[resourceType] = lookup
	r.mu.Unlock()
}

// For returns the lookup registered for the resource type.
func (r *LookupRegistry) For(resourceType string) (Lookup, bool) {
	r.mu.RLock()
	lookup, ok := r.lookups[resourceType]
	r.mu.RUnlock()
	return lookup, ok
}

// TableLookup resolves resources from a PostgreSQL table holding the
// external ID and author columns. It covers the built-in resource tables
// (agents, prompt_groups, mcp_servers, remote_agents, files) without a
// bespoke repository per type.
type TableLookup struct {
	pool      *pgxpool.Pool
	table     string
	idCol     string
	authorCol string
}

// NewTableLookup constructs a TableLookup for one resource table.
func NewTableLookup(pool *pgxpool.Pool, table, idCol, authorCol string) *TableLookup {
	return &TableLookup{pool: pool, table: table, idCol: idCol, authorCol: authorCol}
}

// Resolve fetches the resource row by external ID.
func (l *TableLookup) Resolve(ctx context.Context, externalID string) (Resource, error) {
	query := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s = $1`, l.idCol, l.authorCol, l.table, l.idCol)
	var res Resource
	if err := l.pool.QueryRow(ctx, query, externalID).Scan(&res.ID, &res.AuthorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resource{}, ErrUnknownResource
		}
		return Resource{}, fmt.Errorf("resources: resolve %s: %w", l.table, err)
	}
	return res, nil
}

var _ Lookup = (*TableLookup)(nil)
