package accessroles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ai/meridian/internal/acl"
)

// Repository defines persistence for access roles.
type Repository interface {
	GetByIdentifier(ctx context.Context, identifier string) (AccessRole, error)
	ListByResourceType(ctx context.Context, resourceType string) ([]AccessRole, error)
	CountByResourceType(ctx context.Context, resourceType string) (int64, error)
	// Create inserts the role, ignoring an already-present identifier so
	// seeding stays idempotent.
	Create(ctx context.Context, role AccessRole) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

const roleColumns = `id, identifier, name, description, resource_type, perm_bits, created_at`

// GetByIdentifier fetches one role.
func (r *PGRepository) GetByIdentifier(ctx context.Context, identifier string) (AccessRole, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM access_roles WHERE identifier = $1`, identifier)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccessRole{}, ErrRoleNotFound
		}
		return AccessRole{}, fmt.Errorf("accessroles: get role: %w", err)
	}
	return role, nil
}

// ListByResourceType returns the roles for one resource type, strongest first.
func (r *PGRepository) ListByResourceType(ctx context.Context, resourceType string) ([]AccessRole, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM access_roles WHERE resource_type = $1 ORDER BY perm_bits DESC, identifier`, resourceType)
	if err != nil {
		return nil, fmt.Errorf("accessroles: list roles: %w", err)
	}
	defer rows.Close()
	var roles []AccessRole
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("accessroles: scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("accessroles: iterate roles: %w", err)
	}
	return roles, nil
}

// CountByResourceType reports how many roles exist for a resource type.
func (r *PGRepository) CountByResourceType(ctx context.Context, resourceType string) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM access_roles WHERE resource_type = $1`, resourceType).Scan(&count); err != nil {
		return 0, fmt.Errorf("accessroles: count roles: %w", err)
	}
	return count, nil
}

// Create inserts a role row; a duplicate identifier is left untouched.
func (r *PGRepository) Create(ctx context.Context, role AccessRole) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO access_roles (identifier, name, description, resource_type, perm_bits)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identifier) DO NOTHING`,
		role.Identifier, role.Name, role.Description, role.ResourceType, int64(role.PermBits))
	if err != nil {
		return fmt.Errorf("accessroles: create role: %w", err)
	}
	return nil
}

func scanRole(row pgx.Row) (AccessRole, error) {
	var (
		role AccessRole
		bits int64
	)
	if err := row.Scan(&role.ID, &role.Identifier, &role.Name, &role.Description, &role.ResourceType, &bits, &role.CreatedAt); err != nil {
		return AccessRole{}, err
	}
	role.PermBits = acl.PermBits(bits)
	return role, nil
}
