//go:build postgres || all_adapters

package postgres

import (
	"context"

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Schemes:     []string{"postgres", "postgresql"},
		},
		Factory: func(ctx context.Context, name, rawURL string, opts datasource.PoolOptions) (orm.Engine, error) {
			return NewEngine(ctx, name, rawURL, opts)
		},
	})
}
