package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"absolute", "sqlite:///var/lib/streams.db", "file:/var/lib/streams.db?_busy_timeout=5000&_foreign_keys=1"},
		{"relative", "sqlite://data/streams.db", "file:data/streams.db?_busy_timeout=5000&_foreign_keys=1"},
		{"file url", "file:streams.db", "file:streams.db?_busy_timeout=5000&_foreign_keys=1"},
		{"keeps busy timeout", "sqlite:///x.db?_busy_timeout=100", "file:/x.db?_busy_timeout=100&_foreign_keys=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DSN(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDSN_MissingPath(t *testing.T) {
	_, err := DSN("sqlite://")
	require.Error(t, err)
}

func TestNewEngine_SingleConnection(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, "main", "sqlite://"+filepath.Join(t.TempDir(), "main.db"),
		datasource.PoolOptions{MaxConns: 8})
	require.NoError(t, err)
	defer engine.Close()

	require.NoError(t, engine.Ping(ctx))
	assert.Equal(t, 1, engine.Stats().MaxConns)

	conn, err := engine.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	res, err := tx.Exec(ctx, "INSERT INTO t (name) VALUES (?)", "a")
	require.NoError(t, err)
	assert.True(t, res.HasLastInsertID)
	assert.Equal(t, int64(1), res.LastInsertID)

	rs, err := tx.Query(ctx, "SELECT id, name FROM t")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, rs.Columns)
	require.Len(t, rs.Rows, 1)
	require.NoError(t, tx.Commit(ctx))
}
