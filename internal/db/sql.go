package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// sqlConn pins one database/sql connection and keeps its prepared statements
// in a small LRU; evicted statements are closed.
type sqlConn struct {
	conn   *sql.Conn
	stmts  *lru.Cache[string, *sql.Stmt]
	broken atomic.Bool
}

func dialSQL(ctx context.Context, sqlDB *sql.DB, stmtCap int) (Conn, error) {
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	stmts, err := lru.NewWithEvict(stmtCap, func(_ string, stmt *sql.Stmt) {
		_ = stmt.Close()
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &sqlConn{conn: conn, stmts: stmts}, nil
}

// sqlitePragmas are per connection in SQLite, so every new session gets them.
func sqlitePragmas(ctx context.Context, c Conn) error {
	// journal_mode is rejected for in-memory databases.
	_ = c.Exec(ctx, `PRAGMA journal_mode=WAL`)
	if err := c.Exec(ctx, `PRAGMA busy_timeout=5000`); err != nil {
		return err
	}
	return c.Exec(ctx, `PRAGMA foreign_keys=ON`)
}

func (c *sqlConn) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := c.stmts.Get(query); ok {
		return stmt, nil
	}
	stmt, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, c.observe(err)
	}
	c.stmts.Add(query, stmt)
	return stmt, nil
}

func (c *sqlConn) Query(ctx context.Context, query string) (Rows, error) {
	stmt, err := c.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, c.observe(err)
	}
	return &sqlRows{rows: rows}, nil
}

func (c *sqlConn) Exec(ctx context.Context, query string) error {
	_, err := c.conn.ExecContext(ctx, query)
	return c.observe(err)
}

func (c *sqlConn) Ping(ctx context.Context) error {
	return c.observe(c.conn.PingContext(ctx))
}

func (c *sqlConn) Broken() bool { return c.broken.Load() }

func (c *sqlConn) Close() error {
	c.stmts.Purge()
	return c.conn.Close()
}

// observe marks the session broken on connection-level errors and returns err.
func (c *sqlConn) observe(err error) error {
	if err != nil && (errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone)) {
		c.broken.Store(true)
	}
	return err
}

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqlRows) Next() bool                 { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *sqlRows) Err() error                 { return r.rows.Err() }
func (r *sqlRows) Close()                     { _ = r.rows.Close() }
