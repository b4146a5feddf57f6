package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

const pgxCloseTimeout = 5 * time.Second

// pgxConn is a single native PostgreSQL session. pgx prepares and caches
// statements per connection in its default exec mode.
type pgxConn struct {
	conn *pgx.Conn
}

func dialPgx(ctx context.Context, dsn string) (Conn, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &pgxConn{conn: conn}, nil
}

func (c *pgxConn) Query(ctx context.Context, query string) (Rows, error) {
	rows, err := c.conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

func (c *pgxConn) Exec(ctx context.Context, query string) error {
	_, err := c.conn.Exec(ctx, query)
	return err
}

func (c *pgxConn) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }

// Broken is true once pgx has closed the underlying socket after a fatal
// error.
func (c *pgxConn) Broken() bool { return c.conn.IsClosed() }

func (c *pgxConn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), pgxCloseTimeout)
	defer cancel()
	return c.conn.Close(ctx)
}

type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Columns() ([]string, error) {
	fds := r.rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}
	return cols, nil
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgxRows) Err() error             { return r.rows.Err() }
func (r *pgxRows) Close()                 { r.rows.Close() }
