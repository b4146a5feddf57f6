package db

import (
	"context"
	"embed"
	"fmt"
	stdfs "io/fs"
	"regexp"
	"sort"
	"strings"
)

// Migrations are versioned .sql files under internal/db/migrations:
//
//	0001_name.up.sql / 0001_name.down.sql
//
// A script whose first line is "-- NO_TX" runs outside a transaction.

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	version  int
	name     string
	upFile   string
	downFile string
}

var migFileRe = regexp.MustCompile(`^([0-9]{4})_(.+)\.(up|down)\.sql$`)

func loadMigrations() (map[int]migration, error) {
	entries := map[int]migration{}
	list, err := stdfs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	for _, de := range list {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		m := migFileRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		var ver int
		if _, err := fmt.Sscanf(m[1], "%04d", &ver); err != nil {
			continue
		}
		item := entries[ver]
		item.version = ver
		item.name = m[2]
		p := "migrations/" + name
		if m[3] == "up" {
			item.upFile = p
		} else {
			item.downFile = p
		}
		entries[ver] = item
	}
	return entries, nil
}

func ensureMigrationsTable(ctx context.Context, c Conn) error {
	return c.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version INTEGER PRIMARY KEY,
        applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
}

// AppliedVersions returns the recorded migration versions in ascending order.
func AppliedVersions(ctx context.Context, c Conn) ([]int, error) {
	if err := ensureMigrationsTable(ctx, c); err != nil {
		return nil, err
	}
	rows, err := c.Query(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var got []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		got = append(got, v)
	}
	return got, rows.Err()
}

// runScript executes text and the bookkeeping statement together, inside a
// transaction unless the script opts out.
func runScript(ctx context.Context, c Conn, text, bookkeeping string) error {
	if strings.HasPrefix(strings.TrimSpace(text), "-- NO_TX") {
		if err := c.Exec(ctx, text); err != nil {
			return err
		}
		return c.Exec(ctx, bookkeeping)
	}
	if err := c.Exec(ctx, "BEGIN"); err != nil {
		return err
	}
	if err := c.Exec(ctx, text); err != nil {
		_ = c.Exec(ctx, "ROLLBACK")
		return err
	}
	if err := c.Exec(ctx, bookkeeping); err != nil {
		_ = c.Exec(ctx, "ROLLBACK")
		return err
	}
	return c.Exec(ctx, "COMMIT")
}

// Migrate applies pending up migrations in version order and returns how
// many ran.
func Migrate(ctx context.Context, c Conn) (int, error) {
	migs, err := loadMigrations()
	if err != nil {
		return 0, err
	}
	versions, err := AppliedVersions(ctx, c)
	if err != nil {
		return 0, err
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	pending := make([]int, 0, len(migs))
	for v := range migs {
		if !applied[v] {
			pending = append(pending, v)
		}
	}
	sort.Ints(pending)

	for i, v := range pending {
		m := migs[v]
		if m.upFile == "" {
			return i, fmt.Errorf("missing up migration for version %04d", v)
		}
		text, err := migrationsFS.ReadFile(m.upFile)
		if err != nil {
			return i, err
		}
		// Versions are integers from the embedded file names.
		insert := fmt.Sprintf(`INSERT INTO schema_migrations(version) VALUES (%d)`, v)
		if err := runScript(ctx, c, string(text), insert); err != nil {
			return i, fmt.Errorf("migration %04d_%s failed: %w", v, m.name, err)
		}
	}
	return len(pending), nil
}

// RollbackLast reverts the most recently applied migration and returns its
// version, or 0 when nothing is applied.
func RollbackLast(ctx context.Context, c Conn) (int, error) {
	versions, err := AppliedVersions(ctx, c)
	if err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 0, nil
	}
	version := versions[len(versions)-1]

	migs, err := loadMigrations()
	if err != nil {
		return 0, err
	}
	m, ok := migs[version]
	if !ok || m.downFile == "" {
		return 0, fmt.Errorf("no down migration found for version %d", version)
	}
	text, err := migrationsFS.ReadFile(m.downFile)
	if err != nil {
		return 0, err
	}
	del := fmt.Sprintf(`DELETE FROM schema_migrations WHERE version = %d`, version)
	if err := runScript(ctx, c, string(text), del); err != nil {
		return 0, fmt.Errorf("rollback %04d_%s failed: %w", version, m.name, err)
	}
	return version, nil
}
