// Package checks provides readiness probes for the bizcore dependencies.
package checks

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/monitoring"
	"github.com/charlesng35/bizcore/internal/tenancy"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database pings the configured database handle.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultDatabaseTimeout))
		defer cancel()

		return monitoring.ResultFromError("database", sqlDB.PingContext(probeCtx), time.Since(start))
	})
}

// Isolation reports down when the tenant isolation guard is missing from the
// handle, since tenant-owned queries would then run unscoped.
func Isolation(db *gorm.DB) monitoring.Check {
	return monitoring.NewCheck("tenant_isolation", func(context.Context) monitoring.ProbeResult {
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}
		if _, ok := tenancy.GuardOf(db); !ok {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "isolation guard not installed"}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	})
}

func chooseTimeout(provided, fallback time.Duration) time.Duration {
	if provided <= 0 {
		return fallback
	}
	return provided
}
