// ensure-defaults guarantees every warehouse root has a complete, valid set
// of default locations, then scans for orphan warehouse roots and runs the
// final validation sweep.
//
// Usage: go run ./cmd/ensure-defaults [-tenant <uuid>] [-repair]
//
// The -repair default comes from the WAREHOUSE_REPAIR_MODE environment
// toggle; the flag always wins when supplied.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"warehouse-core/internal/app"
	"warehouse-core/internal/db"
)

func main() {
	_ = godotenv.Load()

	repairDefault, _ := strconv.ParseBool(os.Getenv("WAREHOUSE_REPAIR_MODE"))
	repair := flag.Bool("repair", repairDefault, "repair invalid defaults and relink orphans instead of failing")
	tenant := flag.String("tenant", "", "limit the run to one tenant id")
	flag.Parse()

	var tenantID *uuid.UUID
	if *tenant != "" {
		id, err := uuid.Parse(*tenant)
		if err != nil {
			log.Fatalf("invalid -tenant value %q: %v", *tenant, err)
		}
		tenantID = &id
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	svc := app.NewApplicationService(pool, logger)

	result, err := svc.EnsureWarehouseDefaults(ctx, tenantID, *repair)
	if err != nil {
		log.Fatalf("Ensure run failed: %v", err)
	}

	log.Printf("Processed %d warehouse(s), repair=%v", result.WarehousesProcessed, result.Repair)
	for _, scan := range result.OrphanScans {
		if scan.Degraded {
			log.Printf("Orphan scan for tenant %s degraded: %v", scan.TenantID, scan.Cause)
			continue
		}
		log.Printf("Orphan scan for tenant %s: %d issue(s), %d relinked, %d skipped",
			scan.TenantID, len(scan.Issues), scan.RelinkedWarehouseCount, scan.SkippedRelinkLocalCodeConflictCount)
	}
}
