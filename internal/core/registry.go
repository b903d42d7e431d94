package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const repairHint = "Re-run with repair mode enabled (-repair flag or WAREHOUSE_REPAIR_MODE=true) to replace the default automatically, or fix the location manually."

// EnsureOptions control an ensure run. Repair is threaded explicitly through
// every call; core logic never reads the environment. OrphanDetector
// overrides the registry's scanner (fault injection in tests); nil means the
// registry's own scanner is used.
type EnsureOptions struct {
	Repair         bool
	OrphanDetector OrphanScanner
}

// EnsureRunSummary reports a completed EnsureWarehouseDefaults batch.
type EnsureRunSummary struct {
	WarehousesProcessed int
	OrphanScans         []OrphanScanOutcome
}

// DefaultLocationService guarantees every warehouse has a complete,
// structurally valid set of default locations for the managed roles.
type DefaultLocationService interface {
	// GetDefaultLocationID is a direct lookup, no validation. Returns nil
	// when no mapping exists.
	GetDefaultLocationID(ctx context.Context, tenantID, warehouseID uuid.UUID, role LocationRole) (*uuid.UUID, error)

	// ResolveDefaultForRole resolves the reference location's warehouse and
	// looks up that warehouse's default for the role.
	ResolveDefaultForRole(ctx context.Context, tenantID, referenceLocationID uuid.UUID, role LocationRole) (uuid.UUID, error)

	// EnsureDefaultsForWarehouse creates, validates, and (in repair mode)
	// repairs the warehouse's default mappings inside a single transaction.
	EnsureDefaultsForWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID, opts EnsureOptions) error

	// EnsureWarehouseDefaults runs EnsureDefaultsForWarehouse for every
	// warehouse root (optionally scoped to one tenant), each in its own
	// transaction, then runs best-effort orphan detection per tenant and a
	// final validation sweep.
	EnsureWarehouseDefaults(ctx context.Context, tenantID *uuid.UUID, opts EnsureOptions) (*EnsureRunSummary, error)

	// ValidateWarehouseDefaults fails with DEFAULT_LOCATIONS_REQUIRED if any
	// warehouse root is missing a mapping for a required role. SCRAP is
	// managed by ensure but deliberately excluded from this sweep.
	ValidateWarehouseDefaults(ctx context.Context, tenantID *uuid.UUID) error
}

type DefaultLocationRegistry struct {
	pool      *pgxpool.Pool
	hierarchy HierarchyService
	orphans   OrphanScanner
	log       *logrus.Logger

	// debugDerivedDefaultByRole forces a derived candidate id per role. Test
	// hook only; see SetDebugDerivedDefaultByRole.
	debugDerivedDefaultByRole map[LocationRole]uuid.UUID
}

func NewDefaultLocationRegistry(pool *pgxpool.Pool, hierarchy HierarchyService, orphans OrphanScanner, log *logrus.Logger) *DefaultLocationRegistry {
	return &DefaultLocationRegistry{pool: pool, hierarchy: hierarchy, orphans: orphans, log: log}
}

// SetDebugDerivedDefaultByRole forces the ensure loop to treat the given ids
// as the derived candidates for their roles. A forced derived id without a
// corresponding mapping row is an internal programming-invariant violation
// and fails fast; the hook exists purely to make that impossible-in-production
// state observable in tests.
func (r *DefaultLocationRegistry) SetDebugDerivedDefaultByRole(derived map[LocationRole]uuid.UUID) {
	r.debugDerivedDefaultByRole = derived
}

func (r *DefaultLocationRegistry) GetDefaultLocationID(ctx context.Context, tenantID, warehouseID uuid.UUID, role LocationRole) (*uuid.UUID, error) {
	var locationID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT location_id FROM warehouse_default_locations
		WHERE tenant_id = $1 AND warehouse_id = $2 AND role = $3
	`, tenantID, warehouseID, role).Scan(&locationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up %s default for warehouse %s: %w", role, warehouseID, err)
	}
	return &locationID, nil
}

func (r *DefaultLocationRegistry) ResolveDefaultForRole(ctx context.Context, tenantID, referenceLocationID uuid.UUID, role LocationRole) (uuid.UUID, error) {
	warehouseID, err := r.hierarchy.ResolveWarehouseID(ctx, tenantID, referenceLocationID)
	if err != nil {
		return uuid.Nil, err
	}
	locationID, err := r.GetDefaultLocationID(ctx, tenantID, warehouseID, role)
	if err != nil {
		return uuid.Nil, err
	}
	if locationID == nil {
		return uuid.Nil, &DefaultRequiredError{TenantID: tenantID, WarehouseID: warehouseID, Role: role}
	}
	return *locationID, nil
}

// defaultMapping is an existing mapping row joined with the location it
// points to. Location is nil when the referenced row no longer exists.
type defaultMapping struct {
	ID         uuid.UUID
	Role       LocationRole
	LocationID uuid.UUID
	Location   *Location
}

func (r *DefaultLocationRegistry) EnsureDefaultsForWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID, opts EnsureOptions) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	warehouse, err := loadLocation(ctx, tx, tenantID, warehouseID)
	if err != nil {
		return err
	}
	if warehouse == nil {
		return &WarehouseRootError{Code: CodeWarehouseRootNotFound, TenantID: tenantID, WarehouseID: warehouseID}
	}
	if !warehouse.IsWarehouseRoot() {
		return &WarehouseRootError{Code: CodeWarehouseRootInvalid, TenantID: tenantID, WarehouseID: warehouseID}
	}

	mappings, err := loadDefaultMappings(ctx, tx, tenantID, warehouseID)
	if err != nil {
		return err
	}

	candidates, err := loadRoleCandidates(ctx, tx, tenantID, warehouseID)
	if err != nil {
		return err
	}

	mapped := make(map[LocationRole]bool, len(ManagedRoles))

	for _, role := range ManagedRoles {
		mapping := mappings[role]
		repairing := false

		if mapping != nil {
			reason, ok := validateDefaultShape(mapping.Location, role, warehouseID)
			if ok {
				mapped[role] = true
				continue
			}
			if !opts.Repair {
				return newDefaultInvalidError(tenantID, warehouseID, role, mapping, reason)
			}
			emitEvent(r.log, logrus.WarnLevel, EventDefaultRepairing, logrus.Fields{
				"tenantId":    tenantID,
				"warehouseId": warehouseID,
				"role":        role,
				"locationId":  mapping.LocationID,
				"reason":      reason,
			})
			repairing = true
		}

		locationID, err := r.selectOrCreateDefault(ctx, tx, tenantID, warehouseID, role, mappings, candidates)
		if err != nil {
			return err
		}

		if repairing {
			_, err = tx.Exec(ctx, `
				UPDATE warehouse_default_locations
				SET location_id = $1, updated_at = now()
				WHERE id = $2
			`, locationID, mapping.ID)
			if err != nil {
				return fmt.Errorf("failed to repair %s default mapping: %w", role, err)
			}
			emitEvent(r.log, logrus.InfoLevel, EventDefaultRepaired, logrus.Fields{
				"tenantId":    tenantID,
				"warehouseId": warehouseID,
				"role":        role,
				"locationId":  locationID,
			})
		} else {
			// Idempotent upsert: a concurrent ensure call may have written
			// the same triple already.
			_, err = tx.Exec(ctx, `
				INSERT INTO warehouse_default_locations (tenant_id, warehouse_id, role, location_id)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (tenant_id, warehouse_id, role) DO NOTHING
			`, tenantID, warehouseID, role, locationID)
			if err != nil {
				return fmt.Errorf("failed to upsert %s default mapping: %w", role, err)
			}
		}
		mapped[role] = true
	}

	for _, role := range RequiredRoles {
		if !mapped[role] {
			return &DefaultRequiredError{TenantID: tenantID, WarehouseID: warehouseID, Role: role}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ensure transaction: %w", err)
	}
	return nil
}

// selectOrCreateDefault resolves the location a role's mapping should point
// to: the forced debug id if set, else the earliest matching candidate child,
// else a freshly auto-created location with a deterministic code.
func (r *DefaultLocationRegistry) selectOrCreateDefault(ctx context.Context, tx pgx.Tx, tenantID, warehouseID uuid.UUID, role LocationRole, mappings map[LocationRole]*defaultMapping, candidates map[LocationRole]uuid.UUID) (uuid.UUID, error) {
	if derived, forced := r.debugDerivedDefaultByRole[role]; forced {
		if mappings[role] == nil {
			return uuid.Nil, &InternalInvariantError{
				Code:    CodeInternalDerivedIDWithoutMapping,
				Context: fmt.Sprintf("derived %s default %s for warehouse %s has no mapping row", role, derived, warehouseID),
			}
		}
		return derived, nil
	}

	if candidateID, ok := candidates[role]; ok {
		return candidateID, nil
	}

	return r.autoCreateDefault(ctx, tx, tenantID, warehouseID, role)
}

// autoCreateDefault inserts the role's default location with its
// deterministic code. The insert ignores a taken code so concurrent ensure
// calls cannot create duplicates; the loser re-reads the winner's row.
func (r *DefaultLocationRegistry) autoCreateDefault(ctx context.Context, tx pgx.Tx, tenantID, warehouseID uuid.UUID, role LocationRole) (uuid.UUID, error) {
	code := fmt.Sprintf("%s-%s", role, warehouseID)
	name := fmt.Sprintf("%s Default", role)

	var locationID uuid.UUID
	err := tx.QueryRow(ctx, `
		INSERT INTO locations (tenant_id, code, local_code, name, type, role, is_sellable, active, parent_location_id, warehouse_id)
		VALUES ($1, $2, $2, $3, $4, $5, $6, true, $7, $7)
		ON CONFLICT (tenant_id, code) DO NOTHING
		RETURNING id
	`, tenantID, code, name, role.ExpectedType(), role, role.ExpectedSellable(), warehouseID).Scan(&locationID)

	if err == nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO config_issues (tenant_id, issue_type, entity_type, entity_id, details)
			VALUES ($1, $2, 'location', $3, jsonb_build_object('role', $4::text, 'warehouseId', $5::text))
		`, tenantID, ConfigIssueWarehouseDefaultAutoCreated, locationID, role, warehouseID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to record config issue for auto-created %s default: %w", role, err)
		}
		return locationID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("failed to auto-create %s default location: %w", role, err)
	}

	// The code is taken: either a concurrent ensure won the race, or a
	// previously auto-created default drifted and is being repaired. Recover
	// the row by its deterministic code and restore the expected shape (a
	// no-op for the concurrent-winner case).
	err = tx.QueryRow(ctx,
		"SELECT id FROM locations WHERE tenant_id = $1 AND code = $2",
		tenantID, code,
	).Scan(&locationID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to re-read %s default location by code %s: %w", role, code, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE locations
		SET type = $1, role = $2, is_sellable = $3, parent_location_id = $4, warehouse_id = $4, updated_at = now()
		WHERE tenant_id = $5 AND id = $6
	`, role.ExpectedType(), role, role.ExpectedSellable(), warehouseID, tenantID, locationID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to restore shape of %s default location %s: %w", role, locationID, err)
	}
	return locationID, nil
}

func (r *DefaultLocationRegistry) EnsureWarehouseDefaults(ctx context.Context, tenantID *uuid.UUID, opts EnsureOptions) (*EnsureRunSummary, error) {
	type root struct {
		id       uuid.UUID
		tenantID uuid.UUID
	}

	query := `
		SELECT id, tenant_id FROM locations
		WHERE type = 'warehouse' AND parent_location_id IS NULL
	`
	args := []any{}
	if tenantID != nil {
		query += " AND tenant_id = $1"
		args = append(args, *tenantID)
	}
	query += " ORDER BY created_at, id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list warehouse roots: %w", err)
	}

	var roots []root
	for rows.Next() {
		var w root
		if err := rows.Scan(&w.id, &w.tenantID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan warehouse root: %w", err)
		}
		roots = append(roots, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list warehouse roots: %w", err)
	}

	summary := &EnsureRunSummary{}

	// Sequential on purpose: one transaction per warehouse bounds lock scope,
	// and every step is idempotent, so a crash partway through is safe to
	// resume.
	tenants := make(map[uuid.UUID]bool)
	var tenantOrder []uuid.UUID
	for _, w := range roots {
		if err := r.EnsureDefaultsForWarehouse(ctx, w.tenantID, w.id, opts); err != nil {
			return nil, err
		}
		summary.WarehousesProcessed++
		if !tenants[w.tenantID] {
			tenants[w.tenantID] = true
			tenantOrder = append(tenantOrder, w.tenantID)
		}
	}

	detector := opts.OrphanDetector
	if detector == nil {
		detector = r.orphans
	}
	if detector != nil {
		for _, tid := range tenantOrder {
			summary.OrphanScans = append(summary.OrphanScans, detector.Scan(ctx, tid, opts.Repair))
		}
	}

	if err := r.ValidateWarehouseDefaults(ctx, tenantID); err != nil {
		return nil, err
	}
	return summary, nil
}

func (r *DefaultLocationRegistry) ValidateWarehouseDefaults(ctx context.Context, tenantID *uuid.UUID) error {
	query := `
		SELECT w.tenant_id, w.id, r.role
		FROM locations w
		CROSS JOIN unnest($1::text[]) AS r(role)
		LEFT JOIN warehouse_default_locations m
		       ON m.tenant_id = w.tenant_id AND m.warehouse_id = w.id AND m.role = r.role
		WHERE w.type = 'warehouse' AND w.parent_location_id IS NULL AND m.id IS NULL
	`
	roles := make([]string, len(RequiredRoles))
	for i, role := range RequiredRoles {
		roles[i] = string(role)
	}
	args := []any{roles}
	if tenantID != nil {
		query += " AND w.tenant_id = $2"
		args = append(args, *tenantID)
	}
	query += " ORDER BY w.created_at, w.id, r.role"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("default validation sweep failed: %w", err)
	}
	defer rows.Close()

	var offender *DefaultsRequiredError
	for rows.Next() {
		var tid, wid uuid.UUID
		var role LocationRole
		if err := rows.Scan(&tid, &wid, &role); err != nil {
			return fmt.Errorf("failed to scan validation row: %w", err)
		}
		if offender == nil {
			offender = &DefaultsRequiredError{TenantID: tid, WarehouseID: wid}
		}
		if offender.WarehouseID != wid {
			break
		}
		offender.MissingRoles = append(offender.MissingRoles, role)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("default validation sweep failed: %w", err)
	}
	if offender != nil {
		return offender
	}
	return nil
}

// validateDefaultShape checks a mapped location against its role invariant.
// Missing row wins over everything; a moved parent or warehouse pointer is
// parent_drift; a changed role, type, or sellable flag is role_mismatch.
func validateDefaultShape(loc *Location, role LocationRole, warehouseID uuid.UUID) (InvalidReason, bool) {
	if loc == nil {
		return ReasonMissingLocation, false
	}
	if loc.ParentLocationID == nil || *loc.ParentLocationID != warehouseID ||
		loc.WarehouseID == nil || *loc.WarehouseID != warehouseID {
		return ReasonParentDrift, false
	}
	if loc.Role == nil || *loc.Role != role ||
		loc.Type != role.ExpectedType() ||
		loc.IsSellable != role.ExpectedSellable() {
		return ReasonRoleMismatch, false
	}
	return "", true
}

func newDefaultInvalidError(tenantID, warehouseID uuid.UUID, role LocationRole, mapping *defaultMapping, reason InvalidReason) *DefaultInvalidError {
	expectedRole := role
	expectedType := role.ExpectedType()
	expectedSellable := role.ExpectedSellable()
	wid := warehouseID

	e := &DefaultInvalidError{
		TenantID:          tenantID,
		WarehouseID:       warehouseID,
		Role:              role,
		DefaultLocationID: mapping.LocationID,
		MappingID:         mapping.ID,
		Reason:            reason,
		Expected: LocationShape{
			Role:             &expectedRole,
			WarehouseID:      &wid,
			ParentLocationID: &wid,
			Type:             &expectedType,
			IsSellable:       &expectedSellable,
		},
		Hint: repairHint,
	}
	if loc := mapping.Location; loc != nil {
		locType := loc.Type
		sellable := loc.IsSellable
		e.Actual = LocationShape{
			Role:             loc.Role,
			WarehouseID:      loc.WarehouseID,
			ParentLocationID: loc.ParentLocationID,
			Type:             &locType,
			IsSellable:       &sellable,
		}
	}
	return e
}

func loadLocation(ctx context.Context, tx pgx.Tx, tenantID, locationID uuid.UUID) (*Location, error) {
	var loc Location
	err := tx.QueryRow(ctx, `
		SELECT id, tenant_id, code, local_code, name, type, role, is_sellable, active,
		       parent_location_id, warehouse_id, created_at, updated_at
		FROM locations
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, locationID).Scan(
		&loc.ID, &loc.TenantID, &loc.Code, &loc.LocalCode, &loc.Name, &loc.Type, &loc.Role,
		&loc.IsSellable, &loc.Active, &loc.ParentLocationID, &loc.WarehouseID,
		&loc.CreatedAt, &loc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load location %s: %w", locationID, err)
	}
	return &loc, nil
}

func loadDefaultMappings(ctx context.Context, tx pgx.Tx, tenantID, warehouseID uuid.UUID) (map[LocationRole]*defaultMapping, error) {
	rows, err := tx.Query(ctx, `
		SELECT m.id, m.role, m.location_id,
		       l.id, l.tenant_id, l.code, l.local_code, l.name, l.type, l.role, l.is_sellable,
		       l.active, l.parent_location_id, l.warehouse_id, l.created_at, l.updated_at
		FROM warehouse_default_locations m
		LEFT JOIN locations l ON l.tenant_id = m.tenant_id AND l.id = m.location_id
		WHERE m.tenant_id = $1 AND m.warehouse_id = $2
	`, tenantID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load default mappings for warehouse %s: %w", warehouseID, err)
	}
	defer rows.Close()

	mappings := make(map[LocationRole]*defaultMapping)
	for rows.Next() {
		var m defaultMapping
		var loc Location
		var locID *uuid.UUID
		var locTenantID *uuid.UUID
		var code, localCode, name *string
		var locType *LocationType
		var locRole *LocationRole
		var sellable, active *bool
		var createdAt, updatedAt *time.Time

		err := rows.Scan(&m.ID, &m.Role, &m.LocationID,
			&locID, &locTenantID, &code, &localCode, &name, &locType, &locRole, &sellable,
			&active, &loc.ParentLocationID, &loc.WarehouseID, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan default mapping: %w", err)
		}
		if locID != nil {
			loc.ID = *locID
			loc.TenantID = *locTenantID
			loc.Code = *code
			loc.LocalCode = *localCode
			loc.Name = *name
			loc.Type = *locType
			loc.Role = locRole
			loc.IsSellable = *sellable
			loc.Active = *active
			loc.CreatedAt = *createdAt
			loc.UpdatedAt = *updatedAt
			m.Location = &loc
		}
		mappings[m.Role] = &m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load default mappings for warehouse %s: %w", warehouseID, err)
	}
	return mappings, nil
}

// loadRoleCandidates picks, per role, the earliest child location directly
// under the warehouse that already has the role's expected shape. The
// (created_at, id) ordering is the deterministic tie-break: repeated runs
// choose the same candidate.
func loadRoleCandidates(ctx context.Context, tx pgx.Tx, tenantID, warehouseID uuid.UUID) (map[LocationRole]uuid.UUID, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, role, type
		FROM locations
		WHERE tenant_id = $1
		  AND parent_location_id = $2
		  AND warehouse_id = $2
		  AND role IN ('SELLABLE', 'QA', 'HOLD', 'REJECT', 'SCRAP')
		  AND (role <> 'SELLABLE' OR is_sellable)
		ORDER BY created_at, id
	`, tenantID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role candidates for warehouse %s: %w", warehouseID, err)
	}
	defer rows.Close()

	candidates := make(map[LocationRole]uuid.UUID)
	for rows.Next() {
		var id uuid.UUID
		var role LocationRole
		var locType LocationType
		if err := rows.Scan(&id, &role, &locType); err != nil {
			return nil, fmt.Errorf("failed to scan role candidate: %w", err)
		}
		if locType != role.ExpectedType() {
			continue
		}
		if _, taken := candidates[role]; !taken {
			candidates[role] = id
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load role candidates for warehouse %s: %w", warehouseID, err)
	}
	return candidates, nil
}
