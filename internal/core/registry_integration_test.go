package core_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"warehouse-core/internal/core"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	logrustest "github.com/sirupsen/logrus/hooks/test"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE inventory_reservations, inventory_balances,
		               warehouse_default_locations, config_issues, locations CASCADE;
	`)
	if err != nil {
		t.Fatalf("Failed to clean test database: %v", err)
	}

	return pool
}

func newTestRegistry(pool *pgxpool.Pool) (*core.DefaultLocationRegistry, *logrustest.Hook) {
	logger, hook := logrustest.NewNullLogger()
	scanner := core.NewOrphanScanner(pool, logger)
	registry := core.NewDefaultLocationRegistry(pool, core.NewHierarchyService(pool), scanner, logger)
	return registry, hook
}

func roleOf(r core.LocationRole) *core.LocationRole { return &r }

func seedWarehouse(t *testing.T, pool *pgxpool.Pool, tenantID uuid.UUID, code string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO locations (id, tenant_id, code, local_code, name, type, is_sellable)
		VALUES ($1, $2, $3, $3, $4, 'warehouse', false)
	`, id, tenantID, code, code+" Warehouse")
	if err != nil {
		t.Fatalf("Failed to seed warehouse %s: %v", code, err)
	}
	return id
}

func seedLocation(t *testing.T, pool *pgxpool.Pool, tenantID uuid.UUID, code, localCode string,
	locType core.LocationType, role *core.LocationRole, sellable bool, parentID, warehouseID *uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO locations (id, tenant_id, code, local_code, name, type, role, is_sellable, parent_location_id, warehouse_id)
		VALUES ($1, $2, $3, $4, $3, $5, $6, $7, $8, $9)
	`, id, tenantID, code, localCode, locType, role, sellable, parentID, warehouseID)
	if err != nil {
		t.Fatalf("Failed to seed location %s: %v", code, err)
	}
	return id
}

func countRows(t *testing.T, pool *pgxpool.Pool, query string, args ...any) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	return n
}

func hasEvent(hook *logrustest.Hook, event string) bool {
	for _, entry := range hook.AllEntries() {
		if entry.Data["event"] == event {
			return true
		}
	}
	return false
}

func TestEnsureDefaults_AutoCreatesAllRoles(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	registry, _ := newTestRegistry(pool)
	tenantID := uuid.New()
	warehouseID := seedWarehouse(t, pool, tenantID, "WH-MAIN")

	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{}); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	for _, role := range core.ManagedRoles {
		locationID, err := registry.GetDefaultLocationID(ctx, tenantID, warehouseID, role)
		if err != nil {
			t.Fatalf("Lookup for %s failed: %v", role, err)
		}
		if locationID == nil {
			t.Fatalf("No default mapping for %s", role)
		}

		var code, name string
		var locType core.LocationType
		var locRole core.LocationRole
		var sellable bool
		var parentID, whID uuid.UUID
		err = pool.QueryRow(ctx, `
			SELECT code, name, type, role, is_sellable, parent_location_id, warehouse_id
			FROM locations WHERE tenant_id = $1 AND id = $2
		`, tenantID, *locationID).Scan(&code, &name, &locType, &locRole, &sellable, &parentID, &whID)
		if err != nil {
			t.Fatalf("Failed to load %s default: %v", role, err)
		}

		wantCode := string(role) + "-" + warehouseID.String()
		if code != wantCode {
			t.Errorf("%s default code = %s, want %s", role, code, wantCode)
		}
		if name != string(role)+" Default" {
			t.Errorf("%s default name = %s", role, name)
		}
		if locType != role.ExpectedType() || locRole != role || sellable != role.ExpectedSellable() {
			t.Errorf("%s default has shape (%s, %s, %v)", role, locType, locRole, sellable)
		}
		if parentID != warehouseID || whID != warehouseID {
			t.Errorf("%s default not parented under its warehouse", role)
		}
	}

	// Every auto-created default leaves an audit row.
	issues := countRows(t, pool,
		"SELECT count(*) FROM config_issues WHERE tenant_id = $1 AND issue_type = $2",
		tenantID, core.ConfigIssueWarehouseDefaultAutoCreated)
	if issues != len(core.ManagedRoles) {
		t.Errorf("config_issues rows = %d, want %d", issues, len(core.ManagedRoles))
	}
}

func TestEnsureDefaults_AdoptsEarliestCandidate(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	registry, _ := newTestRegistry(pool)
	tenantID := uuid.New()
	warehouseID := seedWarehouse(t, pool, tenantID, "WH-MAIN")

	first := seedLocation(t, pool, tenantID, "MAIN-PICK-01", "PICK-01",
		core.LocationTypeBin, roleOf(core.RoleSellable), true, &warehouseID, &warehouseID)
	seedLocation(t, pool, tenantID, "MAIN-PICK-02", "PICK-02",
		core.LocationTypeBin, roleOf(core.RoleSellable), true, &warehouseID, &warehouseID)

	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{}); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	locationID, err := registry.GetDefaultLocationID(ctx, tenantID, warehouseID, core.RoleSellable)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if locationID == nil || *locationID != first {
		t.Errorf("SELLABLE default = %v, want earliest candidate %s", locationID, first)
	}

	// Adoption is not auto-creation: only the four remaining roles get audit rows.
	issues := countRows(t, pool,
		"SELECT count(*) FROM config_issues WHERE tenant_id = $1 AND issue_type = $2",
		tenantID, core.ConfigIssueWarehouseDefaultAutoCreated)
	if issues != len(core.ManagedRoles)-1 {
		t.Errorf("config_issues rows = %d, want %d", issues, len(core.ManagedRoles)-1)
	}
}

func TestEnsureDefaults_SkipsCandidateWithWrongShape(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	registry, _ := newTestRegistry(pool)
	tenantID := uuid.New()
	warehouseID := seedWarehouse(t, pool, tenantID, "WH-MAIN")

	// Has the SELLABLE role but not the sellable flag; must not be adopted.
	notSellable := seedLocation(t, pool, tenantID, "MAIN-BAD-01", "BAD-01",
		core.LocationTypeBin, roleOf(core.RoleSellable), false, &warehouseID, &warehouseID)

	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{}); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	locationID, err := registry.GetDefaultLocationID(ctx, tenantID, warehouseID, core.RoleSellable)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if locationID == nil || *locationID == notSellable {
		t.Errorf("SELLABLE default adopted a non-sellable location")
	}
}

func TestEnsureDefaults_Idempotent(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	registry, _ := newTestRegistry(pool)
	tenantID := uuid.New()
	warehouseID := seedWarehouse(t, pool, tenantID, "WH-MAIN")

	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{}); err != nil {
		t.Fatalf("First ensure failed: %v", err)
	}
	locations := countRows(t, pool, "SELECT count(*) FROM locations WHERE tenant_id = $1", tenantID)
	mappings := countRows(t, pool, "SELECT count(*) FROM warehouse_default_locations WHERE tenant_id = $1", tenantID)
	issues := countRows(t, pool, "SELECT count(*) FROM config_issues WHERE tenant_id = $1", tenantID)

	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{}); err != nil {
		t.Fatalf("Second ensure failed: %v", err)
	}

	if n := countRows(t, pool, "SELECT count(*) FROM locations WHERE tenant_id = $1", tenantID); n != locations {
		t.Errorf("Second run changed location count: %d -> %d", locations, n)
	}
	if n := countRows(t, pool, "SELECT count(*) FROM warehouse_default_locations WHERE tenant_id = $1", tenantID); n != mappings {
		t.Errorf("Second run changed mapping count: %d -> %d", mappings, n)
	}
	if n := countRows(t, pool, "SELECT count(*) FROM config_issues WHERE tenant_id = $1", tenantID); n != issues {
		t.Errorf("Second run changed config_issues count: %d -> %d", issues, n)
	}
}

func TestEnsureDefaults_WarehouseRootErrors(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	registry, _ := newTestRegistry(pool)
	tenantID := uuid.New()
	warehouseID := seedWarehouse(t, pool, tenantID, "WH-MAIN")
	binID := seedLocation(t, pool, tenantID, "MAIN-BIN-01", "BIN-01",
		core.LocationTypeBin, nil, false, &warehouseID, &warehouseID)

	err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, uuid.New(), core.EnsureOptions{})
	var rootErr *core.WarehouseRootError
	if !errors.As(err, &rootErr) || rootErr.Code != core.CodeWarehouseRootNotFound {
		t.Errorf("Unknown warehouse: got %v, want %s", err, core.CodeWarehouseRootNotFound)
	}

	err = registry.EnsureDefaultsForWarehouse(ctx, tenantID, binID, core.EnsureOptions{})
	if !errors.As(err, &rootErr) || rootErr.Code != core.CodeWarehouseRootInvalid {
		t.Errorf("Bin as warehouse: got %v, want %s", err, core.CodeWarehouseRootInvalid)
	}
}

func TestEnsureDefaults_ParentDrift(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	registry, hook := newTestRegistry(pool)
	tenantID := uuid.New()
	warehouseID := seedWarehouse(t, pool, tenantID, "WH-MAIN")
	otherID := seedWarehouse(t, pool, tenantID, "WH-EAST")

	pickBin := seedLocation(t, pool, tenantID, "MAIN-PICK-01", "PICK-01",
		core.LocationTypeBin, roleOf(core.RoleSellable), true, &warehouseID, &warehouseID)

	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{}); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, otherID, core.EnsureOptions{}); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	// Someone moves the mapped default under the other warehouse.
	_, err := pool.Exec(ctx, `
		UPDATE locations SET parent_location_id = $1, warehouse_id = $1 WHERE id = $2
	`, otherID, pickBin)
	if err != nil {
		t.Fatalf("Failed to drift location: %v", err)
	}

	err = registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{})
	var invalid *core.DefaultInvalidError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected DEFAULT_INVALID, got %v", err)
	}
	if invalid.Reason != core.ReasonParentDrift {
		t.Errorf("Reason = %s, want %s", invalid.Reason, core.ReasonParentDrift)
	}
	if invalid.Role != core.RoleSellable || invalid.DefaultLocationID != pickBin {
		t.Errorf("Wrong offender: role=%s location=%s", invalid.Role, invalid.DefaultLocationID)
	}
	if invalid.Expected.ParentLocationID == nil || *invalid.Expected.ParentLocationID != warehouseID {
		t.Errorf("Expected shape should name the owning warehouse")
	}
	if invalid.Actual.ParentLocationID == nil || *invalid.Actual.ParentLocationID != otherID {
		t.Errorf("Actual shape should name the drifted parent")
	}
	if invalid.Hint == "" {
		t.Errorf("Invalid-default error carries no remediation hint")
	}

	balancesBefore := countRows(t, pool, "SELECT count(*) FROM inventory_balances WHERE tenant_id = $1", tenantID)

	// Repair mode replaces the mapping and logs the repair events.
	opts := core.EnsureOptions{Repair: true}
	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, opts); err != nil {
		t.Fatalf("Repair run failed: %v", err)
	}
	if !hasEvent(hook, core.EventDefaultRepairing) || !hasEvent(hook, core.EventDefaultRepaired) {
		t.Errorf("Repair run did not log repairing/repaired events")
	}

	locationID, err := registry.GetDefaultLocationID(ctx, tenantID, warehouseID, core.RoleSellable)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if locationID == nil || *locationID == pickBin {
		t.Errorf("Repair left the mapping on the drifted location")
	}

	// Repair touches only mappings and locations.
	if n := countRows(t, pool, "SELECT count(*) FROM inventory_balances WHERE tenant_id = $1", tenantID); n != balancesBefore {
		t.Errorf("Repair changed inventory_balances row count: %d -> %d", balancesBefore, n)
	}

	// The repaired state passes a strict non-repair run.
	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{}); err != nil {
		t.Errorf("Post-repair ensure failed: %v", err)
	}
}

func TestEnsureDefaults_RoleMismatch(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	registry, _ := newTestRegistry(pool)
	tenantID := uuid.New()
	warehouseID := seedWarehouse(t, pool, tenantID, "WH-MAIN")

	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{}); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	locationID, err := registry.GetDefaultLocationID(ctx, tenantID, warehouseID, core.RoleSellable)
	if err != nil || locationID == nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	_, err = pool.Exec(ctx, "UPDATE locations SET is_sellable = false WHERE id = $1", *locationID)
	if err != nil {
		t.Fatalf("Failed to corrupt location: %v", err)
	}

	err = registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{})
	var invalid *core.DefaultInvalidError
	if !errors.As(err, &invalid) || invalid.Reason != core.ReasonRoleMismatch {
		t.Fatalf("Expected role_mismatch, got %v", err)
	}

	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{Repair: true}); err != nil {
		t.Fatalf("Repair run failed: %v", err)
	}
	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{}); err != nil {
		t.Errorf("Post-repair ensure failed: %v", err)
	}
}

func TestEnsureDefaults_MissingLocation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	registry, _ := newTestRegistry(pool)
	tenantID := uuid.New()
	warehouseID := seedWarehouse(t, pool, tenantID, "WH-MAIN")
	qaBin := seedLocation(t, pool, tenantID, "MAIN-QA-01", "QA-01",
		core.LocationTypeBin, roleOf(core.RoleQA), false, &warehouseID, &warehouseID)

	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{}); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	// Point the SELLABLE mapping at a location that no longer exists.
	_, err := pool.Exec(ctx, `
		UPDATE warehouse_default_locations SET location_id = $1
		WHERE tenant_id = $2 AND warehouse_id = $3 AND role = 'SELLABLE'
	`, uuid.New(), tenantID, warehouseID)
	if err != nil {
		t.Fatalf("Failed to dangle mapping: %v", err)
	}

	err = registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{})
	var invalid *core.DefaultInvalidError
	if !errors.As(err, &invalid) || invalid.Reason != core.ReasonMissingLocation {
		t.Fatalf("Expected missing_location, got %v", err)
	}
	if invalid.Actual.Type != nil {
		t.Errorf("Actual shape of a missing location should be empty")
	}

	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{Repair: true}); err != nil {
		t.Fatalf("Repair run failed: %v", err)
	}

	// The repaired SELLABLE default must be a real sellable bin, never the QA bin.
	locationID, err := registry.GetDefaultLocationID(ctx, tenantID, warehouseID, core.RoleSellable)
	if err != nil || locationID == nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if *locationID == qaBin {
		t.Errorf("Repair mapped SELLABLE onto the QA bin")
	}
	var sellable bool
	if err := pool.QueryRow(ctx, "SELECT is_sellable FROM locations WHERE id = $1", *locationID).Scan(&sellable); err != nil {
		t.Fatalf("Failed to load repaired default: %v", err)
	}
	if !sellable {
		t.Errorf("Repaired SELLABLE default is not sellable")
	}
}

func TestEnsureDefaults_ForcedDerivedIDWithoutMappingFailsFast(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	registry, _ := newTestRegistry(pool)
	tenantID := uuid.New()
	warehouseID := seedWarehouse(t, pool, tenantID, "WH-MAIN")

	registry.SetDebugDerivedDefaultByRole(map[core.LocationRole]uuid.UUID{
		core.RoleSellable: uuid.New(),
	})

	err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{})
	var invariant *core.InternalInvariantError
	if !errors.As(err, &invariant) || invariant.Code != core.CodeInternalDerivedIDWithoutMapping {
		t.Fatalf("Expected %s, got %v", core.CodeInternalDerivedIDWithoutMapping, err)
	}

	// The failed run must not have committed anything.
	if n := countRows(t, pool, "SELECT count(*) FROM warehouse_default_locations WHERE tenant_id = $1", tenantID); n != 0 {
		t.Errorf("Failed run left %d mapping rows behind", n)
	}
}

func TestEnsureWarehouseDefaults_Batch(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	registry, _ := newTestRegistry(pool)
	tenantA := uuid.New()
	tenantB := uuid.New()
	seedWarehouse(t, pool, tenantA, "A-WH-1")
	seedWarehouse(t, pool, tenantA, "A-WH-2")
	seedWarehouse(t, pool, tenantB, "B-WH-1")

	summary, err := registry.EnsureWarehouseDefaults(ctx, nil, core.EnsureOptions{})
	if err != nil {
		t.Fatalf("Batch ensure failed: %v", err)
	}
	if summary.WarehousesProcessed != 3 {
		t.Errorf("WarehousesProcessed = %d, want 3", summary.WarehousesProcessed)
	}
	if len(summary.OrphanScans) != 2 {
		t.Errorf("OrphanScans = %d, want one per tenant", len(summary.OrphanScans))
	}
	for _, scan := range summary.OrphanScans {
		if scan.Degraded {
			t.Errorf("Orphan scan for tenant %s degraded: %v", scan.TenantID, scan.Cause)
		}
	}

	if err := registry.ValidateWarehouseDefaults(ctx, nil); err != nil {
		t.Errorf("Validation sweep failed after batch ensure: %v", err)
	}
}

func TestEnsureWarehouseDefaults_ScopedToTenant(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	registry, _ := newTestRegistry(pool)
	tenantA := uuid.New()
	tenantB := uuid.New()
	seedWarehouse(t, pool, tenantA, "A-WH-1")
	whB := seedWarehouse(t, pool, tenantB, "B-WH-1")

	summary, err := registry.EnsureWarehouseDefaults(ctx, &tenantA, core.EnsureOptions{})
	if err != nil {
		t.Fatalf("Scoped ensure failed: %v", err)
	}
	if summary.WarehousesProcessed != 1 {
		t.Errorf("WarehousesProcessed = %d, want 1", summary.WarehousesProcessed)
	}

	// The other tenant stays untouched and still fails its own sweep.
	err = registry.ValidateWarehouseDefaults(ctx, &tenantB)
	var required *core.DefaultsRequiredError
	if !errors.As(err, &required) || required.WarehouseID != whB {
		t.Errorf("Expected tenant B sweep to fail for %s, got %v", whB, err)
	}
}

// stubDetector stands in for the orphan scanner to simulate a detector that
// always fails.
type stubDetector struct {
	cause error
}

func (d *stubDetector) FindOrphanWarehouseRootIssues(ctx context.Context, tenantID uuid.UUID) ([]core.OrphanIssue, error) {
	return nil, d.cause
}

func (d *stubDetector) Scan(ctx context.Context, tenantID uuid.UUID, repair bool) core.OrphanScanOutcome {
	return core.OrphanScanOutcome{TenantID: tenantID, Degraded: true, Cause: d.cause}
}

func TestEnsureWarehouseDefaults_DetectorFailureDoesNotAbort(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	registry, _ := newTestRegistry(pool)
	tenantID := uuid.New()
	warehouseID := seedWarehouse(t, pool, tenantID, "WH-MAIN")

	opts := core.EnsureOptions{
		OrphanDetector: &stubDetector{cause: errors.New("detector blew up")},
	}
	summary, err := registry.EnsureWarehouseDefaults(ctx, &tenantID, opts)
	if err != nil {
		t.Fatalf("Ensure must survive a failing detector, got: %v", err)
	}
	if len(summary.OrphanScans) != 1 || !summary.OrphanScans[0].Degraded {
		t.Errorf("Degraded scan outcome not surfaced in summary")
	}

	// Defaults were still ensured despite the detector failure.
	for _, role := range core.RequiredRoles {
		locationID, err := registry.GetDefaultLocationID(ctx, tenantID, warehouseID, role)
		if err != nil || locationID == nil {
			t.Errorf("Missing %s default after degraded run: %v", role, err)
		}
	}
}

func TestValidateWarehouseDefaults_ScrapIsNotRequired(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	registry, _ := newTestRegistry(pool)
	tenantID := uuid.New()
	warehouseID := seedWarehouse(t, pool, tenantID, "WH-MAIN")

	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{}); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	// Dropping SCRAP does not trip the sweep.
	_, err := pool.Exec(ctx,
		"DELETE FROM warehouse_default_locations WHERE tenant_id = $1 AND role = 'SCRAP'", tenantID)
	if err != nil {
		t.Fatalf("Failed to delete SCRAP mapping: %v", err)
	}
	if err := registry.ValidateWarehouseDefaults(ctx, &tenantID); err != nil {
		t.Errorf("Sweep failed without SCRAP mapping: %v", err)
	}

	// Dropping QA does.
	_, err = pool.Exec(ctx,
		"DELETE FROM warehouse_default_locations WHERE tenant_id = $1 AND role = 'QA'", tenantID)
	if err != nil {
		t.Fatalf("Failed to delete QA mapping: %v", err)
	}
	err = registry.ValidateWarehouseDefaults(ctx, &tenantID)
	var required *core.DefaultsRequiredError
	if !errors.As(err, &required) {
		t.Fatalf("Expected DEFAULT_LOCATIONS_REQUIRED, got %v", err)
	}
	if len(required.MissingRoles) != 1 || required.MissingRoles[0] != core.RoleQA {
		t.Errorf("MissingRoles = %v, want [QA]", required.MissingRoles)
	}
	if required.WarehouseID != warehouseID {
		t.Errorf("Offending warehouse = %s, want %s", required.WarehouseID, warehouseID)
	}
}

func TestResolveDefaultForRole(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	registry, _ := newTestRegistry(pool)
	tenantID := uuid.New()
	warehouseID := seedWarehouse(t, pool, tenantID, "WH-MAIN")
	zoneID := seedLocation(t, pool, tenantID, "MAIN-ZONE-A", "ZONE-A",
		core.LocationTypeZone, nil, false, &warehouseID, &warehouseID)
	binID := seedLocation(t, pool, tenantID, "MAIN-A-01", "A-01",
		core.LocationTypeBin, nil, false, &zoneID, &warehouseID)

	if err := registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{}); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	// Resolution starts from a nested bin and lands on its warehouse's default.
	got, err := registry.ResolveDefaultForRole(ctx, tenantID, binID, core.RoleQA)
	if err != nil {
		t.Fatalf("ResolveDefaultForRole failed: %v", err)
	}
	want, err := registry.GetDefaultLocationID(ctx, tenantID, warehouseID, core.RoleQA)
	if err != nil || want == nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got != *want {
		t.Errorf("Resolved %s, want %s", got, *want)
	}

	// A role with no mapping surfaces DEFAULT_LOCATION_REQUIRED.
	_, err = pool.Exec(ctx,
		"DELETE FROM warehouse_default_locations WHERE tenant_id = $1 AND role = 'HOLD'", tenantID)
	if err != nil {
		t.Fatalf("Failed to delete HOLD mapping: %v", err)
	}
	_, err = registry.ResolveDefaultForRole(ctx, tenantID, binID, core.RoleHold)
	var requiredErr *core.DefaultRequiredError
	if !errors.As(err, &requiredErr) || requiredErr.Role != core.RoleHold {
		t.Errorf("Expected DEFAULT_LOCATION_REQUIRED for HOLD, got %v", err)
	}
}
