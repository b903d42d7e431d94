package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"warehouse-core/internal/core"
)

type appService struct {
	hierarchy    core.HierarchyService
	registry     *core.DefaultLocationRegistry
	orphans      core.OrphanScanner
	availability core.AvailabilityService
}

// NewApplicationService wires the core services over one shared pool.
func NewApplicationService(pool *pgxpool.Pool, log *logrus.Logger) ApplicationService {
	hierarchy := core.NewHierarchyService(pool)
	orphans := core.NewOrphanScanner(pool, log)
	return &appService{
		hierarchy:    hierarchy,
		registry:     core.NewDefaultLocationRegistry(pool, hierarchy, orphans, log),
		orphans:      orphans,
		availability: core.NewAvailabilityService(pool),
	}
}

func (s *appService) ResolveWarehouseID(ctx context.Context, tenantID, locationID uuid.UUID) (uuid.UUID, error) {
	return s.hierarchy.ResolveWarehouseID(ctx, tenantID, locationID)
}

func (s *appService) GetWarehouseDefaultLocationID(ctx context.Context, tenantID, warehouseID uuid.UUID, role core.LocationRole) (*uuid.UUID, error) {
	return s.registry.GetDefaultLocationID(ctx, tenantID, warehouseID, role)
}

func (s *appService) ResolveDefaultLocationForRole(ctx context.Context, tenantID, referenceLocationID uuid.UUID, role core.LocationRole) (uuid.UUID, error) {
	return s.registry.ResolveDefaultForRole(ctx, tenantID, referenceLocationID, role)
}

func (s *appService) EnsureWarehouseDefaultsForWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID, repair bool) error {
	return s.registry.EnsureDefaultsForWarehouse(ctx, tenantID, warehouseID, core.EnsureOptions{Repair: repair})
}

func (s *appService) EnsureWarehouseDefaults(ctx context.Context, tenantID *uuid.UUID, repair bool) (*EnsureRunResult, error) {
	summary, err := s.registry.EnsureWarehouseDefaults(ctx, tenantID, core.EnsureOptions{Repair: repair})
	if err != nil {
		return nil, err
	}
	return &EnsureRunResult{
		TenantID:            tenantID,
		Repair:              repair,
		WarehousesProcessed: summary.WarehousesProcessed,
		OrphanScans:         summary.OrphanScans,
	}, nil
}

func (s *appService) ValidateWarehouseDefaults(ctx context.Context, tenantID *uuid.UUID) error {
	return s.registry.ValidateWarehouseDefaults(ctx, tenantID)
}

func (s *appService) FindOrphanWarehouseRootIssues(ctx context.Context, tenantID uuid.UUID) ([]core.OrphanIssue, error) {
	return s.orphans.FindOrphanWarehouseRootIssues(ctx, tenantID)
}

func (s *appService) ScanOrphanWarehouseRoots(ctx context.Context, tenantID uuid.UUID, repair bool) *OrphanScanResult {
	outcome := s.orphans.Scan(ctx, tenantID, repair)
	return &OrphanScanResult{
		TenantID:                            tenantID,
		Repair:                              repair,
		Issues:                              outcome.Issues,
		RelinkedWarehouseCount:              outcome.RelinkedWarehouseCount,
		SkippedRelinkLocalCodeConflictCount: outcome.SkippedRelinkLocalCodeConflictCount,
		Degraded:                            outcome.Degraded,
		Cause:                               outcome.Cause,
	}
}

func (s *appService) GetWarehouseAvailability(ctx context.Context, tenantID uuid.UUID) (*AvailabilityResult, error) {
	levels, err := s.availability.GetWarehouseAvailability(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &AvailabilityResult{TenantID: tenantID, Levels: levels}, nil
}
