package app

import (
	"github.com/google/uuid"

	"warehouse-core/internal/core"
)

// EnsureRunResult is returned by EnsureWarehouseDefaults.
type EnsureRunResult struct {
	TenantID            *uuid.UUID
	Repair              bool
	WarehousesProcessed int
	OrphanScans         []core.OrphanScanOutcome
}

// OrphanScanResult is returned by ScanOrphanWarehouseRoots.
type OrphanScanResult struct {
	TenantID                            uuid.UUID
	Repair                              bool
	Issues                              []core.OrphanIssue
	RelinkedWarehouseCount              int
	SkippedRelinkLocalCodeConflictCount int
	Degraded                            bool
	Cause                               error
}

// AvailabilityResult is returned by GetWarehouseAvailability.
type AvailabilityResult struct {
	TenantID uuid.UUID
	Levels   []core.WarehouseAvailability
}
