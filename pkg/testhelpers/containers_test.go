//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

func TestCreateDatabase_SampleSchema(t *testing.T) {
	ctx := context.Background()
	p := GetTestPostgres(t)

	url := p.CreateDatabase(t, DBMain)
	engine, err := postgres.NewEngine(ctx, DBMain, url, datasource.PoolOptions{})
	if err != nil {
		t.Fatalf("failed to open engine: %v", err)
	}
	defer engine.Close()

	reg := orm.NewRegistry()
	var decls []orm.EntityDecl
	for _, d := range SampleEntities() {
		if d.DBIDs[0] == DBMain {
			decls = append(decls, d)
		}
	}
	if err := reg.Register(decls...); err != nil {
		t.Fatalf("failed to register main entities: %v", err)
	}
	CreateSchema(t, reg, map[string]orm.Engine{DBMain: engine})

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer pool.Close()

	var tableCount int
	err = pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'public'").
		Scan(&tableCount)
	if err != nil {
		t.Fatalf("failed to count tables: %v", err)
	}

	want := len(reg.Metadata(DBMain).Tables())
	if tableCount != want {
		t.Errorf("expected %d tables, got %d", want, tableCount)
	}
}
