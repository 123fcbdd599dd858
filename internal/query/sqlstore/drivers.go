package sqlstore

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite = "sqlite"
	DriverDuckDB = "duckdb"
	DriverPgx    = "pgx"
)

// Dialect reports the SQL flavour spoken by a database/sql driver name.
func Dialect(driver string) (string, error) {
	switch driver {
	case DriverSQLite:
		return "sqlite", nil
	case DriverDuckDB:
		return "duckdb", nil
	case DriverPgx:
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported store driver %q", driver)
	}
}
