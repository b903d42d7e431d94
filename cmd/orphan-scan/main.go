// orphan-scan reports locations whose stored warehouse pointer disagrees with
// the warehouse root derived from their parent chain, and optionally relinks
// them.
//
// Usage: go run ./cmd/orphan-scan -tenant <uuid> [-repair]
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
	repair := flag.Bool("repair", repairDefault, "relink orphans to their derived warehouse")
	tenant := flag.String("tenant", "", "tenant id to scan (required)")
	flag.Parse()

	if *tenant == "" {
		log.Fatal("-tenant is required")
	}
	tenantID, err := uuid.Parse(*tenant)
	if err != nil {
		log.Fatalf("invalid -tenant value %q: %v", *tenant, err)
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

	result := svc.ScanOrphanWarehouseRoots(ctx, tenantID, *repair)
	if result.Degraded {
		log.Fatalf("Scan degraded: %v", result.Cause)
	}

	for _, issue := range result.Issues {
		stored := "none"
		if issue.WarehouseID != nil {
			stored = issue.WarehouseID.String()
		}
		log.Printf("orphan %s: stored warehouse %s, derived %s",
			issue.LocationID, stored, issue.DerivedParentWarehouseID)
	}
	log.Printf("%d issue(s), %d relinked, %d skipped (local_code conflict)",
		len(result.Issues), result.RelinkedWarehouseCount, result.SkippedRelinkLocalCodeConflictCount)
}
