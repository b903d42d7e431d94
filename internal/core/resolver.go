package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxResolveHops bounds the parent-pointer walk. The SQL function
// resolve_warehouse_for_location enforces the same limit.
const MaxResolveHops = 20

// HierarchyService resolves which warehouse root owns a location by walking
// parent pointers. Pure read; safe under arbitrary concurrency.
type HierarchyService interface {
	ResolveWarehouseID(ctx context.Context, tenantID, locationID uuid.UUID) (uuid.UUID, error)
	// ResolveWarehouseIDTx resolves inside a caller-provided transaction so
	// the answer is consistent with the transaction's snapshot.
	ResolveWarehouseIDTx(ctx context.Context, tx pgx.Tx, tenantID, locationID uuid.UUID) (uuid.UUID, error)
}

type hierarchyService struct {
	pool *pgxpool.Pool
}

func NewHierarchyService(pool *pgxpool.Pool) HierarchyService {
	return &hierarchyService{pool: pool}
}

// hierarchyNode is the slice of a location row the walk needs.
type hierarchyNode struct {
	Type             LocationType
	ParentLocationID *uuid.UUID
}

// errNodeNotFound is returned by fetch callbacks when a location row is
// absent; the walk translates it into RESOLUTION_FAILED.
var errNodeNotFound = errors.New("location not found")

// walkToWarehouseRoot runs the resolver algorithm against any row source.
// Starting at locationID it repeatedly fetches the current node, returns its
// id once the node is a warehouse, and otherwise continues from the parent.
// A visited set catches cycles; more than MaxResolveHops hops fails.
func walkToWarehouseRoot(tenantID, locationID uuid.UUID, fetch func(id uuid.UUID) (hierarchyNode, error)) (uuid.UUID, error) {
	current := locationID
	visited := make(map[uuid.UUID]bool, MaxResolveHops)
	hops := 0

	for {
		if hops > MaxResolveHops {
			return uuid.Nil, &ResolutionError{Code: CodeDepthExceeded, TenantID: tenantID, LocationID: locationID, Hops: hops}
		}
		if visited[current] {
			return uuid.Nil, &ResolutionError{Code: CodeCycle, TenantID: tenantID, LocationID: locationID, Hops: hops}
		}
		visited[current] = true

		node, err := fetch(current)
		if err != nil {
			if errors.Is(err, errNodeNotFound) {
				return uuid.Nil, &ResolutionError{Code: CodeResolutionFailed, TenantID: tenantID, LocationID: locationID, Hops: hops}
			}
			return uuid.Nil, err
		}

		if node.Type == LocationTypeWarehouse {
			return current, nil
		}
		if node.ParentLocationID == nil {
			return uuid.Nil, &ResolutionError{Code: CodeResolutionFailed, TenantID: tenantID, LocationID: locationID, Hops: hops}
		}

		current = *node.ParentLocationID
		hops++
	}
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func fetchNode(ctx context.Context, q rowQuerier, tenantID uuid.UUID) func(id uuid.UUID) (hierarchyNode, error) {
	return func(id uuid.UUID) (hierarchyNode, error) {
		var node hierarchyNode
		err := q.QueryRow(ctx,
			"SELECT type, parent_location_id FROM locations WHERE tenant_id = $1 AND id = $2",
			tenantID, id,
		).Scan(&node.Type, &node.ParentLocationID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return hierarchyNode{}, errNodeNotFound
			}
			return hierarchyNode{}, fmt.Errorf("failed to fetch location %s: %w", id, err)
		}
		return node, nil
	}
}

func (s *hierarchyService) ResolveWarehouseID(ctx context.Context, tenantID, locationID uuid.UUID) (uuid.UUID, error) {
	return walkToWarehouseRoot(tenantID, locationID, fetchNode(ctx, s.pool, tenantID))
}

func (s *hierarchyService) ResolveWarehouseIDTx(ctx context.Context, tx pgx.Tx, tenantID, locationID uuid.UUID) (uuid.UUID, error) {
	return walkToWarehouseRoot(tenantID, locationID, fetchNode(ctx, tx, tenantID))
}
