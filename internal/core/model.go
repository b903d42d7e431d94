package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LocationType string

const (
	LocationTypeWarehouse LocationType = "warehouse"
	LocationTypeZone      LocationType = "zone"
	LocationTypeBin       LocationType = "bin"
	LocationTypeScrap     LocationType = "scrap"
)

type LocationRole string

const (
	RoleSellable LocationRole = "SELLABLE"
	RoleQA       LocationRole = "QA"
	RoleHold     LocationRole = "HOLD"
	RoleReject   LocationRole = "REJECT"
	RoleScrap    LocationRole = "SCRAP"
)

// ManagedRoles is every role the registry creates and repairs defaults for.
// RequiredRoles is the subset whose absence fails the validation sweep; SCRAP
// is managed but its absence is non-blocking.
var (
	ManagedRoles  = []LocationRole{RoleSellable, RoleQA, RoleHold, RoleReject, RoleScrap}
	RequiredRoles = []LocationRole{RoleSellable, RoleQA, RoleHold, RoleReject}
)

// ExpectedType returns the location type a default of this role must have.
func (r LocationRole) ExpectedType() LocationType {
	if r == RoleScrap {
		return LocationTypeScrap
	}
	return LocationTypeBin
}

// ExpectedSellable returns the is_sellable flag a default of this role must carry.
func (r LocationRole) ExpectedSellable() bool {
	return r == RoleSellable
}

type Location struct {
	ID               uuid.UUID     `json:"id"`
	TenantID         uuid.UUID     `json:"tenant_id"`
	Code             string        `json:"code"`
	LocalCode        string        `json:"local_code"`
	Name             string        `json:"name"`
	Type             LocationType  `json:"type"`
	Role             *LocationRole `json:"role,omitempty"`
	IsSellable       bool          `json:"is_sellable"`
	Active           bool          `json:"active"`
	ParentLocationID *uuid.UUID    `json:"parent_location_id,omitempty"`
	WarehouseID      *uuid.UUID    `json:"warehouse_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// IsWarehouseRoot reports whether the location satisfies the warehouse-root
// shape invariant: warehouse type, no role, not sellable, no parent.
func (l *Location) IsWarehouseRoot() bool {
	return l.Type == LocationTypeWarehouse &&
		l.Role == nil &&
		!l.IsSellable &&
		l.ParentLocationID == nil
}

// WarehouseDefaultLocation maps (tenant, warehouse, role) to the canonical
// location receiving/putaway flows use for that role.
type WarehouseDefaultLocation struct {
	ID          uuid.UUID    `json:"id"`
	TenantID    uuid.UUID    `json:"tenant_id"`
	WarehouseID uuid.UUID    `json:"warehouse_id"`
	Role        LocationRole `json:"role"`
	LocationID  uuid.UUID    `json:"location_id"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

const ConfigIssueWarehouseDefaultAutoCreated = "WAREHOUSE_DEFAULT_AUTO_CREATED"

// ConfigIssue is one append-only audit row. This system only ever inserts.
type ConfigIssue struct {
	ID         uuid.UUID      `json:"id"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	IssueType  string         `json:"issue_type"`
	EntityType string         `json:"entity_type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}

type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "RESERVED"
	ReservationStatusAllocated ReservationStatus = "ALLOCATED"
	ReservationStatusFulfilled ReservationStatus = "FULFILLED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

// InventoryReservation rows are guarded by the sync_reservation_warehouse
// trigger: WarehouseID always equals the resolver's output for LocationID,
// and both are immutable once the row exists.
type InventoryReservation struct {
	ID                uuid.UUID         `json:"id"`
	TenantID          uuid.UUID         `json:"tenant_id"`
	SKU               string            `json:"sku"`
	LocationID        uuid.UUID         `json:"location_id"`
	WarehouseID       uuid.UUID         `json:"warehouse_id"`
	Status            ReservationStatus `json:"status"`
	QuantityReserved  decimal.Decimal   `json:"quantity_reserved"`
	QuantityFulfilled decimal.Decimal   `json:"quantity_fulfilled"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// LocationAvailability is one row of the location_availability view.
type LocationAvailability struct {
	TenantID    uuid.UUID       `json:"tenant_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	LocationID  uuid.UUID       `json:"location_id"`
	SKU         string          `json:"sku"`
	OnHand      decimal.Decimal `json:"qty_on_hand"`
	Reserved    decimal.Decimal `json:"qty_reserved"`
	Allocated   decimal.Decimal `json:"qty_allocated"`
	Available   decimal.Decimal `json:"qty_available"`
}

// WarehouseAvailability is one row of the warehouse_availability rollup view.
type WarehouseAvailability struct {
	TenantID    uuid.UUID       `json:"tenant_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	SKU         string          `json:"sku"`
	OnHand      decimal.Decimal `json:"qty_on_hand"`
	Reserved    decimal.Decimal `json:"qty_reserved"`
	Allocated   decimal.Decimal `json:"qty_allocated"`
	Available   decimal.Decimal `json:"qty_available"`
}
