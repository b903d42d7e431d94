package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// OrphanIssue is one location whose stored warehouse pointer disagrees with
// the warehouse root derived by walking its parent chain.
type OrphanIssue struct {
	LocationID               uuid.UUID     `json:"location_id"`
	ParentLocationID         *uuid.UUID    `json:"parent_location_id"`
	WarehouseID              *uuid.UUID    `json:"warehouse_id"`
	WarehouseType            *LocationType `json:"warehouse_type"`
	DerivedParentWarehouseID uuid.UUID     `json:"derived_parent_warehouse_id"`
}

// OrphanScanOutcome reports a completed scan. Scan never returns an error:
// a detector failure is recorded as Degraded with the logged cause, so the
// surrounding ensure flow is never coupled to the detector's failure modes.
type OrphanScanOutcome struct {
	TenantID                            uuid.UUID
	Issues                              []OrphanIssue
	RelinkedWarehouseCount              int
	SkippedRelinkLocalCodeConflictCount int
	Degraded                            bool
	Cause                               error
}

// OrphanScanner finds and optionally repairs orphan warehouse roots.
type OrphanScanner interface {
	FindOrphanWarehouseRootIssues(ctx context.Context, tenantID uuid.UUID) ([]OrphanIssue, error)
	Scan(ctx context.Context, tenantID uuid.UUID, repair bool) OrphanScanOutcome
}

type orphanScanner struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

func NewOrphanScanner(pool *pgxpool.Pool, log *logrus.Logger) OrphanScanner {
	return &orphanScanner{pool: pool, log: log}
}

// FindOrphanWarehouseRootIssues derives the true warehouse for every non-root
// location via resolve_warehouse_for_location and reports rows whose stored
// pointer disagrees. Pure read. The SQL function raises on malformed chains
// (cycles, missing parents), which surfaces here as an error for the caller
// to classify.
func (s *orphanScanner) FindOrphanWarehouseRootIssues(ctx context.Context, tenantID uuid.UUID) ([]OrphanIssue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.id,
		       l.parent_location_id,
		       l.warehouse_id,
		       w.type,
		       resolve_warehouse_for_location(l.tenant_id, l.id) AS derived_parent_warehouse_id
		FROM locations l
		LEFT JOIN locations w ON w.id = l.warehouse_id
		WHERE l.tenant_id = $1
		  AND l.type <> 'warehouse'
		  AND (l.warehouse_id IS NULL
		       OR l.warehouse_id IS DISTINCT FROM resolve_warehouse_for_location(l.tenant_id, l.id))
		ORDER BY l.created_at, l.id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("orphan detection query failed: %w", err)
	}
	defer rows.Close()

	var issues []OrphanIssue
	for rows.Next() {
		var issue OrphanIssue
		if err := rows.Scan(&issue.LocationID, &issue.ParentLocationID, &issue.WarehouseID,
			&issue.WarehouseType, &issue.DerivedParentWarehouseID); err != nil {
			return nil, fmt.Errorf("failed to scan orphan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orphan detection query failed: %w", err)
	}
	return issues, nil
}

// Scan detects orphans and, in repair mode, relinks each one to its derived
// warehouse. Relinks are applied independently per location: a relink that
// would duplicate a local_code in the target warehouse is skipped and
// counted, never fatal. Partial completion is idempotent to retry.
func (s *orphanScanner) Scan(ctx context.Context, tenantID uuid.UUID, repair bool) OrphanScanOutcome {
	outcome := OrphanScanOutcome{TenantID: tenantID}

	issues, err := s.FindOrphanWarehouseRootIssues(ctx, tenantID)
	if err != nil {
		s.logDetectionFailure(tenantID, err)
		outcome.Degraded = true
		outcome.Cause = err
		return outcome
	}
	outcome.Issues = issues

	if len(issues) == 0 {
		return outcome
	}

	ids := make([]uuid.UUID, len(issues))
	for i, issue := range issues {
		ids[i] = issue.LocationID
	}

	if !repair {
		emitEvent(s.log, logrus.WarnLevel, EventOrphanRootsDetected, logrus.Fields{
			"tenantId":    tenantID,
			"count":       len(issues),
			"locationIds": ids,
		})
		return outcome
	}

	emitEvent(s.log, logrus.InfoLevel, EventOrphanRootsRepairing, logrus.Fields{
		"tenantId":    tenantID,
		"count":       len(issues),
		"locationIds": ids,
	})

	for _, issue := range issues {
		_, err := s.pool.Exec(ctx, `
			UPDATE locations
			SET warehouse_id = $1, updated_at = now()
			WHERE tenant_id = $2 AND id = $3
		`, issue.DerivedParentWarehouseID, tenantID, issue.LocationID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				outcome.SkippedRelinkLocalCodeConflictCount++
				continue
			}
			s.logDetectionFailure(tenantID, err)
			outcome.Degraded = true
			outcome.Cause = err
			continue
		}
		outcome.RelinkedWarehouseCount++
	}

	emitEvent(s.log, logrus.InfoLevel, EventOrphanRootsRepaired, logrus.Fields{
		"tenantId":                            tenantID,
		"relinkedWarehouseCount":              outcome.RelinkedWarehouseCount,
		"skippedRelinkLocalCodeConflictCount": outcome.SkippedRelinkLocalCodeConflictCount,
	})

	return outcome
}

func (s *orphanScanner) logDetectionFailure(tenantID uuid.UUID, err error) {
	fields := logrus.Fields{
		"tenantId": tenantID,
		"error":    err.Error(),
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		fields["code"] = pgErr.Code
		fields["detail"] = pgErr.Detail
		fields["schema"] = pgErr.SchemaName
		fields["table"] = pgErr.TableName
		fields["constraint"] = pgErr.ConstraintName
		fields["routine"] = pgErr.Routine
	}
	emitEvent(s.log, logrus.ErrorLevel, EventOrphanRootsDetectionFailed, fields)
}
