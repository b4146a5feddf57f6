package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"userService/internal/db"
	"userService/internal/pool"
	"userService/models"
)

// OpenInMemoryPool opens a shared-cache in-memory SQLite database, applies
// migrations and returns a pool over it together with a dedicated connection.
// The dedicated connection keeps the database alive for the whole test and
// can be used for seeding. Everything is closed via t.Cleanup.
func OpenInMemoryPool(t *testing.T, name string, cfg pool.Config) (*pool.Pool[db.Conn], db.Conn) {
	t.Helper()
	target, err := db.ParseTarget("file:"+name+"?mode=memory&cache=shared", "")
	if err != nil {
		t.Fatalf("parse target: %v", err)
	}
	m, err := db.NewManager(target, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { _ = m.Shutdown() })

	ctx := context.Background()
	keeper, err := m.Connect(ctx)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = keeper.Close() })
	if _, err := db.Migrate(ctx, keeper); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	p, err := pool.New[db.Conn](ctx, m, cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	t.Cleanup(p.Close)
	return p, keeper
}

// UnreachablePool returns a pool whose data source cannot be opened. No
// connection is attempted until the first Acquire.
func UnreachablePool(t *testing.T, cfg pool.Config) *pool.Pool[db.Conn] {
	t.Helper()
	path := filepath.Join(t.TempDir(), "missing", "dir", "app.db")
	target, err := db.ParseTarget("sqlite:"+path, "")
	if err != nil {
		t.Fatalf("parse target: %v", err)
	}
	m, err := db.NewManager(target, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { _ = m.Shutdown() })

	cfg.MinIdle = -1
	p, err := pool.New[db.Conn](context.Background(), m, cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

// SeedUsers inserts users in the given order.
func SeedUsers(t *testing.T, conn db.Conn, users ...models.User) {
	t.Helper()
	for _, u := range users {
		stmt := fmt.Sprintf(`INSERT INTO users (id, email, password) VALUES (%d, '%s', '%s')`,
			u.ID, quote(u.Email), quote(u.Password))
		if err := conn.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("seed user %d: %v", u.ID, err)
		}
	}
}

func quote(s string) string { return strings.ReplaceAll(s, "'", "''") }
