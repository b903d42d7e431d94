package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AvailabilityService reads the availability views. These are downstream
// consumers of the reservation invariant: because the trigger guarantees
// every reservation's warehouse_id matches its location hierarchy, the views
// can group by the stored warehouse_id without re-deriving ownership.
type AvailabilityService interface {
	GetLocationAvailability(ctx context.Context, tenantID, warehouseID uuid.UUID) ([]LocationAvailability, error)
	GetWarehouseAvailability(ctx context.Context, tenantID uuid.UUID) ([]WarehouseAvailability, error)
}

type availabilityService struct {
	pool *pgxpool.Pool
}

func NewAvailabilityService(pool *pgxpool.Pool) AvailabilityService {
	return &availabilityService{pool: pool}
}

func (s *availabilityService) GetLocationAvailability(ctx context.Context, tenantID, warehouseID uuid.UUID) ([]LocationAvailability, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, warehouse_id, location_id, sku,
		       qty_on_hand, qty_reserved, qty_allocated, qty_available
		FROM location_availability
		WHERE tenant_id = $1 AND warehouse_id = $2
		ORDER BY sku, location_id
	`, tenantID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query location availability: %w", err)
	}
	defer rows.Close()

	var levels []LocationAvailability
	for rows.Next() {
		var a LocationAvailability
		if err := rows.Scan(&a.TenantID, &a.WarehouseID, &a.LocationID, &a.SKU,
			&a.OnHand, &a.Reserved, &a.Allocated, &a.Available); err != nil {
			return nil, fmt.Errorf("failed to scan availability row: %w", err)
		}
		levels = append(levels, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query location availability: %w", err)
	}
	return levels, nil
}

func (s *availabilityService) GetWarehouseAvailability(ctx context.Context, tenantID uuid.UUID) ([]WarehouseAvailability, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, warehouse_id, sku,
		       qty_on_hand, qty_reserved, qty_allocated, qty_available
		FROM warehouse_availability
		WHERE tenant_id = $1
		ORDER BY warehouse_id, sku
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query warehouse availability: %w", err)
	}
	defer rows.Close()

	var levels []WarehouseAvailability
	for rows.Next() {
		var a WarehouseAvailability
		if err := rows.Scan(&a.TenantID, &a.WarehouseID, &a.SKU,
			&a.OnHand, &a.Reserved, &a.Allocated, &a.Available); err != nil {
			return nil, fmt.Errorf("failed to scan availability row: %w", err)
		}
		levels = append(levels, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query warehouse availability: %w", err)
	}
	return levels, nil
}
