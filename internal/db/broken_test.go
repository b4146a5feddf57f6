package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"userService/internal/pool"
)

func TestSQLConn_ObserveMarksBroken(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		broken bool
	}{
		{name: "nil", err: nil},
		{name: "statement error", err: errors.New("no such table: missing")},
		{name: "bad conn", err: fmt.Errorf("read: %w", driver.ErrBadConn), broken: true},
		{name: "conn done", err: fmt.Errorf("exec: %w", sql.ErrConnDone), broken: true},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, c := openSQLite(t, fmt.Sprintf("dbobserve%d", i))
			sc := c.(*sqlConn)

			got := sc.observe(tt.err)
			if tt.err != nil {
				assert.ErrorIs(t, got, tt.err)
			} else {
				assert.NoError(t, got)
			}
			assert.Equal(t, tt.broken, c.Broken())
			assert.Equal(t, tt.broken, m.HasBroken(c))
		})
	}
}

func TestPool_DiscardsClosedSQLSession(t *testing.T) {
	m, _ := openSQLite(t, "dbpoolbroken")
	ctx := context.Background()

	p, err := pool.New[Conn](ctx, m, pool.Config{MaxSize: 1, MinIdle: -1}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(p.Close)

	var first Conn
	err = p.With(ctx, func(c Conn) error {
		first = c
		// The session dies under the borrower; the next round trip reports it.
		require.NoError(t, c.(*sqlConn).conn.Close())
		return c.Ping(ctx)
	})
	require.ErrorIs(t, err, sql.ErrConnDone)
	assert.True(t, first.Broken())

	st := p.Stats()
	assert.Equal(t, 0, st.Idle, "a broken session is not recycled")
	assert.Equal(t, 0, st.InUse)
	assert.Equal(t, int64(1), st.Discarded)

	// A fresh session replaces it.
	err = p.With(ctx, func(c Conn) error {
		assert.NotSame(t, first, c)
		return c.Ping(ctx)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stats().Idle)
}
