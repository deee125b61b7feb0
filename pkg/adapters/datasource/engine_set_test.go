package datasource_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

type fakeEngine struct {
	name    string
	pingErr error
	closed  int
}

func (e *fakeEngine) Name() string         { return e.name }
func (e *fakeEngine) Dialect() orm.Dialect { return orm.DialectSQLite }
func (e *fakeEngine) Acquire(context.Context) (orm.Conn, error) {
	return nil, errors.New("not supported")
}
func (e *fakeEngine) Ping(context.Context) error { return e.pingErr }
func (e *fakeEngine) Close()                     { e.closed++ }
func (e *fakeEngine) Stats() datasource.PoolStats {
	return datasource.PoolStats{Engine: e.name, Type: "fake"}
}

func TestOpenEngines(t *testing.T) {
	dir := t.TempDir()
	set, err := datasource.OpenEngines(context.Background(), map[string]string{
		"admin": "sqlite://" + filepath.Join(dir, "admin.db"),
		"front": "sqlite://" + filepath.Join(dir, "front.db"),
	}, datasource.PoolOptions{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer set.Close()

	binds := set.Binds()
	assert.Len(t, binds, 2)
	assert.Equal(t, "admin", binds["admin"].Name())

	_, ok := set.Engine("front")
	assert.True(t, ok)
	_, ok = set.Engine("main")
	assert.False(t, ok)

	require.NoError(t, set.Ping(context.Background()))

	stats := set.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "admin", stats[0].Engine)
	assert.Equal(t, "front", stats[1].Engine)
}

func TestOpenEngines_ClosesOnFailure(t *testing.T) {
	_, err := datasource.OpenEngines(context.Background(), map[string]string{
		"a": "sqlite://" + filepath.Join(t.TempDir(), "a.db"),
		"b": "nosuch://host/db",
	}, datasource.PoolOptions{}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open engine for b")
}

func TestEngineSet_PingFailure(t *testing.T) {
	set := datasource.NewEngineSet(map[string]orm.Engine{
		"main": &fakeEngine{name: "main", pingErr: errors.New("connection refused")},
	}, zaptest.NewLogger(t))

	err := set.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine main")
}

func TestEngineSet_CloseOnce(t *testing.T) {
	e := &fakeEngine{name: "main"}
	set := datasource.NewEngineSet(map[string]orm.Engine{"main": e}, nil)

	set.Close()
	set.Close()
	assert.Equal(t, 1, e.closed)
}
