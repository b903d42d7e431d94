package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ReservationService writes inventory_reservations. The
// sync_reservation_warehouse trigger is the authority on warehouse
// consistency: this service never computes warehouse_id itself, it passes the
// caller's value (or none) and maps the trigger's exceptions to coded errors.
type ReservationService interface {
	// Create inserts a reservation. WarehouseID may be nil, in which case the
	// trigger fills it from the location hierarchy.
	Create(ctx context.Context, req CreateReservationRequest) (*InventoryReservation, error)

	Get(ctx context.Context, tenantID, reservationID uuid.UUID) (*InventoryReservation, error)

	// Allocate transitions an open RESERVED row to ALLOCATED.
	Allocate(ctx context.Context, tenantID, reservationID uuid.UUID) error

	// Fulfill adds to quantity_fulfilled, transitioning to FULFILLED once the
	// reserved quantity is fully consumed.
	Fulfill(ctx context.Context, tenantID, reservationID uuid.UUID, quantity decimal.Decimal) error

	Cancel(ctx context.Context, tenantID, reservationID uuid.UUID) error
}

type CreateReservationRequest struct {
	TenantID    uuid.UUID
	SKU         string
	LocationID  uuid.UUID
	WarehouseID *uuid.UUID
	Quantity    decimal.Decimal
}

type reservationService struct {
	pool *pgxpool.Pool
}

func NewReservationService(pool *pgxpool.Pool) ReservationService {
	return &reservationService{pool: pool}
}

var reservationErrorCodes = []string{
	CodeReservationWarehouseRequired,
	CodeReservationLocationImmutable,
	CodeReservationWarehouseImmutable,
	CodeReservationWarehouseMismatch,
	CodeDepthExceeded,
	CodeCycle,
}

// mapReservationError translates the trigger's RAISE EXCEPTION identifiers
// into coded errors. Unknown errors pass through wrapped.
func mapReservationError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		for _, code := range reservationErrorCodes {
			if strings.Contains(pgErr.Message, code) {
				return &ReservationError{Code: code}
			}
		}
	}
	return err
}

const reservationColumns = "id, tenant_id, sku, location_id, warehouse_id, status, quantity_reserved, quantity_fulfilled, created_at, updated_at"

func scanReservation(row pgx.Row) (*InventoryReservation, error) {
	var res InventoryReservation
	err := row.Scan(&res.ID, &res.TenantID, &res.SKU, &res.LocationID, &res.WarehouseID,
		&res.Status, &res.QuantityReserved, &res.QuantityFulfilled, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *reservationService) Create(ctx context.Context, req CreateReservationRequest) (*InventoryReservation, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO inventory_reservations (tenant_id, sku, location_id, warehouse_id, quantity_reserved)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+reservationColumns,
		req.TenantID, req.SKU, req.LocationID, req.WarehouseID, req.Quantity)

	res, err := scanReservation(row)
	if err != nil {
		if mapped := mapReservationError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}
	return res, nil
}

func (s *reservationService) Get(ctx context.Context, tenantID, reservationID uuid.UUID) (*InventoryReservation, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+reservationColumns+" FROM inventory_reservations WHERE tenant_id = $1 AND id = $2",
		tenantID, reservationID)

	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reservation %s not found", reservationID)
		}
		return nil, fmt.Errorf("failed to fetch reservation %s: %w", reservationID, err)
	}
	return res, nil
}

func (s *reservationService) Allocate(ctx context.Context, tenantID, reservationID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE inventory_reservations
		SET status = 'ALLOCATED'
		WHERE tenant_id = $1 AND id = $2 AND status = 'RESERVED'
	`, tenantID, reservationID)
	if err != nil {
		if mapped := mapReservationError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to allocate reservation %s: %w", reservationID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %s is not open for allocation", reservationID)
	}
	return nil
}

func (s *reservationService) Fulfill(ctx context.Context, tenantID, reservationID uuid.UUID, quantity decimal.Decimal) error {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("fulfillment quantity must be positive, got %s", quantity)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := scanReservation(tx.QueryRow(ctx,
		"SELECT "+reservationColumns+" FROM inventory_reservations WHERE tenant_id = $1 AND id = $2 FOR UPDATE",
		tenantID, reservationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("reservation %s not found", reservationID)
		}
		return fmt.Errorf("failed to fetch reservation %s: %w", reservationID, err)
	}

	if res.Status != ReservationStatusReserved && res.Status != ReservationStatusAllocated {
		return fmt.Errorf("reservation %s is %s and cannot be fulfilled", reservationID, res.Status)
	}

	fulfilled := res.QuantityFulfilled.Add(quantity)
	if fulfilled.GreaterThan(res.QuantityReserved) {
		return fmt.Errorf("fulfillment of %s would exceed reserved quantity %s on reservation %s",
			quantity, res.QuantityReserved, reservationID)
	}

	status := res.Status
	if fulfilled.Equal(res.QuantityReserved) {
		status = ReservationStatusFulfilled
	}

	_, err = tx.Exec(ctx, `
		UPDATE inventory_reservations
		SET quantity_fulfilled = $1, status = $2
		WHERE tenant_id = $3 AND id = $4
	`, fulfilled, status, tenantID, reservationID)
	if err != nil {
		if mapped := mapReservationError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to fulfill reservation %s: %w", reservationID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit fulfillment: %w", err)
	}
	return nil
}

func (s *reservationService) Cancel(ctx context.Context, tenantID, reservationID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE inventory_reservations
		SET status = 'CANCELLED'
		WHERE tenant_id = $1 AND id = $2 AND status IN ('RESERVED', 'ALLOCATED')
	`, tenantID, reservationID)
	if err != nil {
		if mapped := mapReservationError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to cancel reservation %s: %w", reservationID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %s is not open for cancellation", reservationID)
	}
	return nil
}
