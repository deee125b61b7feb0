package testhelpers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

// PostgresImage is the server image used by integration tests.
const PostgresImage = "postgres:16-alpine"

const (
	testUser     = "streams"
	testPassword = "test_password"
)

// TestPostgres is a PostgreSQL container shared by every test of a run.
type TestPostgres struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool // connected to the maintenance database
	host      string
	port      string
}

var (
	sharedPostgres     *TestPostgres
	sharedPostgresOnce sync.Once
	sharedPostgresErr  error
)

// GetTestPostgres returns the shared container, starting it on first use.
func GetTestPostgres(t *testing.T) *TestPostgres {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedPostgresOnce.Do(func() {
		sharedPostgres, sharedPostgresErr = setupTestPostgres()
	})

	if sharedPostgresErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedPostgresErr)
	}

	return sharedPostgres
}

func setupTestPostgres() (*TestPostgres, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "postgres",
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	p := &TestPostgres{Container: container, host: host, port: port.Port()}
	pool, err := pgxpool.New(ctx, p.URL("postgres"))
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("database did not become ready: %w", err)
	}
	p.Pool = pool
	return p, nil
}

// URL returns the connection URL of a database in the container.
func (p *TestPostgres) URL(database string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		testUser, testPassword, p.host, p.port, database)
}

// CreateDatabase creates a uniquely named empty database, dropped when
// the test ends, and returns its URL.
func (p *TestPostgres) CreateDatabase(t *testing.T, prefix string) string {
	t.Helper()
	ctx := context.Background()

	name := fmt.Sprintf("streams_%s_%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	if _, err := p.Pool.Exec(ctx, "CREATE DATABASE "+name); err != nil {
		t.Fatalf("failed to create database %s: %v", name, err)
	}
	t.Cleanup(func() {
		_, _ = p.Pool.Exec(context.Background(), "DROP DATABASE IF EXISTS "+name+" WITH (FORCE)")
	})
	return p.URL(name)
}

// NewPostgresBinds creates one database and engine per database identifier.
func NewPostgresBinds(t *testing.T, dbIDs ...string) map[string]orm.Engine {
	t.Helper()
	p := GetTestPostgres(t)

	binds := make(map[string]orm.Engine, len(dbIDs))
	for _, id := range dbIDs {
		engine, err := postgres.NewEngine(context.Background(), id, p.CreateDatabase(t, id), datasource.PoolOptions{MaxConns: 4})
		if err != nil {
			t.Fatalf("failed to open postgres engine %s: %v", id, err)
		}
		t.Cleanup(engine.Close)
		binds[id] = engine
	}
	return binds
}

// NewPostgresSampleDatabase is NewSampleDatabase on PostgreSQL.
func NewPostgresSampleDatabase(t *testing.T) *SampleDatabase {
	t.Helper()
	reg := orm.NewRegistry()
	if err := reg.Register(SampleEntities()...); err != nil {
		t.Fatalf("failed to register sample entities: %v", err)
	}
	binds := NewPostgresBinds(t, reg.DBIDs()...)
	CreateSchema(t, reg, binds)
	return &SampleDatabase{Registry: reg, Binds: binds}
}
