package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const migrationTable = "askql_schema_migrations"

var migrationNamePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

// Runner applies the embedded demo-store migrations. The SQL avoids
// driver-specific placeholders and functions so it runs on sqlite, duckdb and
// postgres alike.
type Runner struct {
	fsys fs.FS
	now  func() time.Time
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS, now: time.Now}
}

// Entry is one known migration and when it was applied. AppliedAt is empty
// while the migration is pending.
type Entry struct {
	Version   int64
	Name      string
	AppliedAt string
}

func (e Entry) Applied() bool {
	return e.AppliedAt != ""
}

type Status struct {
	Entries []Entry
}

func (s Status) Applied() []int64 {
	return s.versions(true)
}

func (s Status) Pending() []int64 {
	return s.versions(false)
}

func (s Status) versions(applied bool) []int64 {
	out := []int64{}
	for _, entry := range s.Entries {
		if entry.Applied() == applied {
			out = append(out, entry.Version)
		}
	}
	return out
}

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// Up applies pending migrations in version order; steps <= 0 applies all.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	migrations, applied, err := r.load(ctx, db)
	if err != nil {
		return 0, err
	}

	runCount := 0
	for _, item := range migrations {
		if _, ok := applied[item.Version]; ok {
			continue
		}
		if steps > 0 && runCount >= steps {
			break
		}
		if err := applyMigration(ctx, db, item, r.now().UTC()); err != nil {
			return runCount, err
		}
		runCount++
	}
	return runCount, nil
}

// Down rolls back the newest applied migrations; steps <= 0 rolls back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	migrations, applied, err := r.load(ctx, db)
	if err != nil {
		return 0, err
	}

	known := make(map[int64]struct{}, len(migrations))
	for _, item := range migrations {
		known[item.Version] = struct{}{}
	}
	for version := range applied {
		if _, ok := known[version]; !ok {
			return 0, fmt.Errorf("applied migration %d is missing from source", version)
		}
	}

	runCount := 0
	for i := len(migrations) - 1; i >= 0 && runCount < steps; i-- {
		item := migrations[i]
		if _, ok := applied[item.Version]; !ok {
			continue
		}
		if err := rollbackMigration(ctx, db, item); err != nil {
			return runCount, err
		}
		runCount++
	}
	return runCount, nil
}

func (r *Runner) Status(ctx context.Context, db *sql.DB) (Status, error) {
	migrations, applied, err := r.load(ctx, db)
	if err != nil {
		return Status{}, err
	}
	status := Status{Entries: make([]Entry, 0, len(migrations))}
	for _, item := range migrations {
		status.Entries = append(status.Entries, Entry{
			Version:   item.Version,
			Name:      item.Name,
			AppliedAt: applied[item.Version],
		})
	}
	return status, nil
}

func (r *Runner) load(ctx context.Context, db *sql.DB) ([]migration, map[int64]string, error) {
	migrations, err := loadMigrations(r.fsys)
	if err != nil {
		return nil, nil, err
	}
	if err := ensureMigrationTable(ctx, db); err != nil {
		return nil, nil, err
	}
	applied, err := listApplied(ctx, db)
	if err != nil {
		return nil, nil, err
	}
	return migrations, applied, nil
}

func ensureMigrationTable(ctx context.Context, db *sql.DB) error {
	query := `
CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
	version BIGINT PRIMARY KEY,
	applied_at TEXT NOT NULL
)`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return nil
}

// Statements are built with literals because the three drivers disagree on
// placeholder syntax.
func applyMigration(ctx context.Context, db *sql.DB, item migration, appliedAt time.Time) error {
	mark := fmt.Sprintf(`INSERT INTO %s (version, applied_at) VALUES (%d, '%s')`, migrationTable, item.Version, appliedAt.Format(time.RFC3339))
	return runInTx(ctx, db, item.UpSQL, mark, fmt.Sprintf("migration %d (%s)", item.Version, item.Name))
}

func rollbackMigration(ctx context.Context, db *sql.DB, item migration) error {
	unmark := fmt.Sprintf(`DELETE FROM %s WHERE version = %d`, migrationTable, item.Version)
	return runInTx(ctx, db, item.DownSQL, unmark, fmt.Sprintf("rollback %d (%s)", item.Version, item.Name))
}

func runInTx(ctx context.Context, db *sql.DB, script, bookkeeping, label string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", label, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("run %s: %w", label, err)
	}
	if _, err := tx.ExecContext(ctx, bookkeeping); err != nil {
		return fmt.Errorf("record %s: %w", label, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", label, err)
	}
	return nil
}

func listApplied(ctx context.Context, db *sql.DB) (map[int64]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM `+migrationTable)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := map[int64]string{}
	for rows.Next() {
		var (
			version   int64
			appliedAt string
		)
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan applied version: %w", err)
		}
		applied[version] = appliedAt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return applied, nil
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	items := map[int64]migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := path.Base(entry.Name())
		matches := migrationNamePattern.FindStringSubmatch(base)
		if len(matches) != 4 {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version for %q: %w", base, err)
		}
		script, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}

		item := items[version]
		if item.Name != "" && item.Name != matches[2] {
			return nil, fmt.Errorf("migration %d has mismatched names %q and %q", version, item.Name, matches[2])
		}
		item.Version = version
		item.Name = matches[2]
		if matches[3] == "up" {
			item.UpSQL = string(script)
		} else {
			item.DownSQL = string(script)
		}
		items[version] = item
	}

	migrations := make([]migration, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", item.Version)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", item.Version)
		}
		migrations = append(migrations, item)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}
