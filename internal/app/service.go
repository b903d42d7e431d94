package app

import (
	"context"

	"github.com/google/uuid"

	"warehouse-core/internal/core"
)

// ApplicationService is the single interface the operational tools call.
// It decouples the cmd/ entrypoints from business logic. Implementations must
// contain no fmt.Println and no display logic of any kind.
type ApplicationService interface {
	// ResolveWarehouseID walks parent pointers from a location to its
	// warehouse root.
	ResolveWarehouseID(ctx context.Context, tenantID, locationID uuid.UUID) (uuid.UUID, error)

	// GetWarehouseDefaultLocationID returns the mapped default for a role,
	// or nil when no mapping exists. Direct lookup, no validation.
	GetWarehouseDefaultLocationID(ctx context.Context, tenantID, warehouseID uuid.UUID, role core.LocationRole) (*uuid.UUID, error)

	// ResolveDefaultLocationForRole resolves the reference location's
	// warehouse, then returns that warehouse's default for the role.
	ResolveDefaultLocationForRole(ctx context.Context, tenantID, referenceLocationID uuid.UUID, role core.LocationRole) (uuid.UUID, error)

	// EnsureWarehouseDefaultsForWarehouse ensures/repairs one warehouse's
	// default set inside a single transaction.
	EnsureWarehouseDefaultsForWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID, repair bool) error

	// EnsureWarehouseDefaults runs the full batch: every warehouse root
	// (optionally scoped to a tenant), then orphan detection, then the final
	// validation sweep.
	EnsureWarehouseDefaults(ctx context.Context, tenantID *uuid.UUID, repair bool) (*EnsureRunResult, error)

	// ValidateWarehouseDefaults re-checks that every warehouse root has all
	// required roles mapped.
	ValidateWarehouseDefaults(ctx context.Context, tenantID *uuid.UUID) error

	// FindOrphanWarehouseRootIssues reports locations whose stored warehouse
	// pointer disagrees with the derived warehouse root. Pure read.
	FindOrphanWarehouseRootIssues(ctx context.Context, tenantID uuid.UUID) ([]core.OrphanIssue, error)

	// ScanOrphanWarehouseRoots detects and, in repair mode, relinks orphans.
	// Never fails: detector errors degrade the result instead.
	ScanOrphanWarehouseRoots(ctx context.Context, tenantID uuid.UUID, repair bool) *OrphanScanResult

	// GetWarehouseAvailability returns the per-warehouse availability rollup
	// for a tenant.
	GetWarehouseAvailability(ctx context.Context, tenantID uuid.UUID) (*AvailabilityResult, error)
}
