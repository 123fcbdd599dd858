package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Open returns a pinged pool for bootstrap and health checks. The query path
// never uses it.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store dsn is required")
	}
	if _, err := Dialect(driver); err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	return db, nil
}

// HealthCheck opens and pings a short-lived connection.
func HealthCheck(driver, dsn string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		db, err := Open(ctx, driver, dsn)
		if err != nil {
			return err
		}
		return db.Close()
	}
}
