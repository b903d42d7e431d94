// seed-dev loads a demo tenant into the database: two warehouses with role
// bins under the first, some on-hand balances, and an open reservation. Run
// it against a fresh dev database after verify-db.
//
// Usage: go run ./cmd/seed-dev
package main

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"warehouse-core/internal/db"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	tenantID := uuid.New()
	mainWH := uuid.New()
	eastWH := uuid.New()

	log.Printf("Seeding tenant %s...", tenantID)
	_, err = tx.Exec(ctx, `
		INSERT INTO locations (id, tenant_id, code, local_code, name, type, is_sellable, parent_location_id, warehouse_id)
		VALUES
		($1, $3, 'WH-MAIN', 'WH-MAIN', 'Main Warehouse', 'warehouse', false, NULL, NULL),
		($2, $3, 'WH-EAST', 'WH-EAST', 'East Warehouse', 'warehouse', false, NULL, NULL)
	`, mainWH, eastWH, tenantID)
	if err != nil {
		log.Fatalf("Failed to seed warehouses: %v", err)
	}

	pickBin := uuid.New()
	qaBin := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO locations (id, tenant_id, code, local_code, name, type, role, is_sellable, parent_location_id, warehouse_id)
		VALUES
		($1, $3, 'MAIN-PICK-01', 'PICK-01', 'Main Pick Face', 'bin', 'SELLABLE', true, $4, $4),
		($2, $3, 'MAIN-QA-01', 'QA-01', 'Main QA Bin', 'bin', 'QA', false, $4, $4)
	`, pickBin, qaBin, tenantID, mainWH)
	if err != nil {
		log.Fatalf("Failed to seed bins: %v", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO inventory_balances (tenant_id, sku, location_id, warehouse_id, qty_on_hand)
		VALUES
		($1, 'SKU-100', $2, $3, $4),
		($1, 'SKU-200', $2, $3, $5)
	`, tenantID, pickBin, mainWH,
		decimal.NewFromInt(120), decimal.NewFromInt(40))
	if err != nil {
		log.Fatalf("Failed to seed balances: %v", err)
	}

	// warehouse_id left null: the sync_reservation_warehouse trigger fills it.
	_, err = tx.Exec(ctx, `
		INSERT INTO inventory_reservations (tenant_id, sku, location_id, quantity_reserved)
		VALUES ($1, 'SKU-100', $2, $3)
	`, tenantID, pickBin, decimal.NewFromInt(25))
	if err != nil {
		log.Fatalf("Failed to seed reservation: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit seed: %v", err)
	}

	log.Printf("Done. Run ensure-defaults to fill in the remaining role defaults, e.g.:")
	log.Printf("  go run ./cmd/ensure-defaults -tenant %s", tenantID)
}
