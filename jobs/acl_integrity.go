package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ai/meridian/internal/observability"
	"github.com/meridian-ai/meridian/internal/resources"
)

// IntegrityScanner reports ACL entries that violate engine invariants:
// entries for unregistered resource types, non-public entries without a
// principal id, and public entries carrying one. The scan only reports;
// operators decide whether to clean up.
type IntegrityScanner struct {
	pool    *pgxpool.Pool
	types   *resources.TypeRegistry
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewIntegrityScanner constructs an IntegrityScanner.
func NewIntegrityScanner(pool *pgxpool.Pool, types *resources.TypeRegistry, logger *slog.Logger, metrics *observability.Metrics) *IntegrityScanner {
	return &IntegrityScanner{pool: pool, types: types, logger: logger, metrics: metrics}
}

// HandleIntegrityScan processes TaskACLIntegrityScan tasks.
func (s *IntegrityScanner) HandleIntegrityScan(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	issues, err := s.Scan(ctx, payload.ResourceType)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveJob(TaskACLIntegrityScan, "error")
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.ObserveJob(TaskACLIntegrityScan, "ok")
	}
	if s.logger != nil {
		s.logger.Info("acl integrity scan finished",
			slog.String("resource_type", payload.ResourceType),
			slog.Int("issues", issues))
	}
	return nil
}

// Scan runs the integrity queries, logging each finding, and returns the
// number of offending rows.
func (s *IntegrityScanner) Scan(ctx context.Context, resourceType string) (int, error) {
	query := `SELECT principal_type, principal_id, resource_type, resource_id FROM acl_entries`
	args := []any{}
	if resourceType != "" {
		query += ` WHERE resource_type = $1`
		args = append(args, resourceType)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	issues := 0
	for rows.Next() {
		var ptype, pid, rtype, rid string
		if err := rows.Scan(&ptype, &pid, &rtype, &rid); err != nil {
			return issues, err
		}
		switch {
		case !s.types.Known(rtype):
			issues++
			s.report("unknown resource type", ptype, pid, rtype, rid)
		case ptype == "public" && pid != "":
			issues++
			s.report("public entry carries principal id", ptype, pid, rtype, rid)
		case ptype != "public" && pid == "":
			issues++
			s.report("entry missing principal id", ptype, pid, rtype, rid)
		}
	}
	return issues, rows.Err()
}

func (s *IntegrityScanner) report(problem, ptype, pid, rtype, rid string) {
	if s.logger == nil {
		return
	}
	s.logger.Warn("acl integrity issue",
		slog.String("problem", problem),
		slog.String("principal_type", ptype),
		slog.String("principal_id", pid),
		slog.String("resource_type", rtype),
		slog.String("resource_id", rid))
}
