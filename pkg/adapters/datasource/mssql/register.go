//go:build mssql || all_adapters

package mssql

import (
	"context"

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Schemes:     []string{"sqlserver", "mssql", "azuresql"},
		},
		Factory: func(ctx context.Context, name, rawURL string, opts datasource.PoolOptions) (orm.Engine, error) {
			return NewEngine(ctx, name, rawURL, opts)
		},
	})
}
