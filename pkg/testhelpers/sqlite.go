package testhelpers

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

// NewSQLiteEngine opens an engine on a fresh database file in the test's
// temp dir. The engine is closed when the test ends.
func NewSQLiteEngine(t *testing.T, name string) orm.Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".db")
	engine, err := sqlite.NewEngine(context.Background(), name, "sqlite://"+path, datasource.PoolOptions{})
	if err != nil {
		t.Fatalf("failed to open sqlite engine %s: %v", name, err)
	}
	t.Cleanup(engine.Close)
	return engine
}

// NewSQLiteBinds opens one sqlite engine per database identifier.
func NewSQLiteBinds(t *testing.T, dbIDs ...string) map[string]orm.Engine {
	t.Helper()
	binds := make(map[string]orm.Engine, len(dbIDs))
	for _, id := range dbIDs {
		binds[id] = NewSQLiteEngine(t, id)
	}
	return binds
}

// CreateSchema creates every table of reg on binds.
func CreateSchema(t *testing.T, reg *orm.Registry, binds map[string]orm.Engine) {
	t.Helper()
	err := orm.WithSession(context.Background(), binds, zaptest.NewLogger(t), func(sess *orm.Session) error {
		return reg.CreateAll(context.Background(), sess)
	})
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
}

// SampleDatabase is a registry with the sample entities and its tables
// created on sqlite engines.
type SampleDatabase struct {
	Registry *orm.Registry
	Binds    map[string]orm.Engine
}

// NewSampleDatabase registers SampleEntities and creates them on sqlite.
func NewSampleDatabase(t *testing.T) *SampleDatabase {
	t.Helper()
	reg := orm.NewRegistry()
	if err := reg.Register(SampleEntities()...); err != nil {
		t.Fatalf("failed to register sample entities: %v", err)
	}
	binds := NewSQLiteBinds(t, reg.DBIDs()...)
	CreateSchema(t, reg, binds)
	return &SampleDatabase{Registry: reg, Binds: binds}
}

// Mapper resolves a mapper or fails the test.
func (db *SampleDatabase) Mapper(t *testing.T, id string) orm.Mapper {
	t.Helper()
	m, err := db.Registry.Mapper(id)
	if err != nil {
		t.Fatalf("unknown mapper %s: %v", id, err)
	}
	return m
}

// Session opens a session closed at test end. Callers commit explicitly.
func (db *SampleDatabase) Session(t *testing.T) *orm.Session {
	t.Helper()
	sess := orm.NewSession(db.Binds, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = sess.Close(context.Background()) })
	return sess
}
