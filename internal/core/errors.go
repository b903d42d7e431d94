package core

import (
	"fmt"

	"github.com/google/uuid"
)

// Error codes surfaced by this package. Structural codes are always fatal to
// the calling operation; consistency codes are fatal in non-repair mode and
// drive self-healing in repair mode.
const (
	CodeDepthExceeded    = "DEPTH_EXCEEDED"
	CodeCycle            = "CYCLE"
	CodeResolutionFailed = "RESOLUTION_FAILED"

	CodeWarehouseRootNotFound    = "WAREHOUSE_ROOT_NOT_FOUND"
	CodeWarehouseRootInvalid     = "WAREHOUSE_ROOT_INVALID"
	CodeDefaultInvalid           = "DEFAULT_INVALID"
	CodeDefaultLocationRequired  = "DEFAULT_LOCATION_REQUIRED"
	CodeDefaultLocationsRequired = "DEFAULT_LOCATIONS_REQUIRED"

	CodeInternalDerivedIDWithoutMapping = "DEFAULT_INTERNAL_DERIVED_ID_WITHOUT_MAPPING"

	CodeReservationWarehouseRequired  = "RESERVATION_WAREHOUSE_REQUIRED"
	CodeReservationLocationImmutable  = "RESERVATION_LOCATION_IMMUTABLE"
	CodeReservationWarehouseImmutable = "RESERVATION_WAREHOUSE_IMMUTABLE"
	CodeReservationWarehouseMismatch  = "RESERVATION_WAREHOUSE_MISMATCH"
)

// ResolutionError is a structural hierarchy failure. Never retried
// automatically: it indicates corrupt or misconfigured data.
type ResolutionError struct {
	Code       string
	TenantID   uuid.UUID
	LocationID uuid.UUID
	Hops       int
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: resolving warehouse for location %s (tenant %s, %d hops)",
		e.Code, e.LocationID, e.TenantID, e.Hops)
}

// InvalidReason classifies why a mapped default location failed validation.
type InvalidReason string

const (
	ReasonParentDrift     InvalidReason = "parent_drift"
	ReasonRoleMismatch    InvalidReason = "role_mismatch"
	ReasonMissingLocation InvalidReason = "missing_location"
)

// LocationShape is the role-invariant shape of a default location, used for
// the expected/actual pair on DefaultInvalidError. Pointer fields are nil
// when the location no longer exists.
type LocationShape struct {
	Role             *LocationRole `json:"role"`
	WarehouseID      *uuid.UUID    `json:"warehouse_id"`
	ParentLocationID *uuid.UUID    `json:"parent_location_id"`
	Type             *LocationType `json:"type"`
	IsSellable       *bool         `json:"is_sellable"`
}

// DefaultInvalidError is raised in non-repair mode when an existing mapping
// points at a location that no longer satisfies its role invariant.
type DefaultInvalidError struct {
	TenantID          uuid.UUID     `json:"tenantId"`
	WarehouseID       uuid.UUID     `json:"warehouseId"`
	Role              LocationRole  `json:"role"`
	DefaultLocationID uuid.UUID     `json:"defaultLocationId"`
	MappingID         uuid.UUID     `json:"mappingId"`
	Reason            InvalidReason `json:"reason"`
	Expected          LocationShape `json:"expected"`
	Actual            LocationShape `json:"actual"`
	Hint              string        `json:"hint"`
}

func (e *DefaultInvalidError) Error() string {
	return fmt.Sprintf("%s: default %s location %s for warehouse %s failed validation (%s). %s",
		CodeDefaultInvalid, e.Role, e.DefaultLocationID, e.WarehouseID, e.Reason, e.Hint)
}

// DefaultRequiredError is raised when a required role ends an ensure run
// still unmapped, or when a lookup finds no default for the role.
type DefaultRequiredError struct {
	TenantID    uuid.UUID
	WarehouseID uuid.UUID
	Role        LocationRole
}

func (e *DefaultRequiredError) Error() string {
	return fmt.Sprintf("%s: no %s default location for warehouse %s (tenant %s)",
		CodeDefaultLocationRequired, e.Role, e.WarehouseID, e.TenantID)
}

// DefaultsRequiredError is raised by the final validation sweep when one or
// more required roles are unmapped for a warehouse.
type DefaultsRequiredError struct {
	TenantID     uuid.UUID      `json:"tenantId"`
	WarehouseID  uuid.UUID      `json:"warehouseId"`
	MissingRoles []LocationRole `json:"missingRoles"`
}

func (e *DefaultsRequiredError) Error() string {
	return fmt.Sprintf("%s: warehouse %s (tenant %s) is missing required defaults %v",
		CodeDefaultLocationsRequired, e.WarehouseID, e.TenantID, e.MissingRoles)
}

// WarehouseRootError is raised when the target of an ensure run is absent or
// fails the warehouse-root shape invariant.
type WarehouseRootError struct {
	Code        string
	TenantID    uuid.UUID
	WarehouseID uuid.UUID
}

func (e *WarehouseRootError) Error() string {
	return fmt.Sprintf("%s: warehouse %s (tenant %s)", e.Code, e.WarehouseID, e.TenantID)
}

// InternalInvariantError marks a programming-invariant violation. It should
// never occur against real data paths and is always fatal.
type InternalInvariantError struct {
	Code    string
	Context string
}

func (e *InternalInvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Context)
}

// ReservationError is the application-side mapping of the
// sync_reservation_warehouse trigger's exception identifiers.
type ReservationError struct {
	Code string
}

func (e *ReservationError) Error() string {
	return e.Code
}
