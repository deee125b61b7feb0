//go:build mysql || all_adapters

package mysql

import (
	"context"

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "mysql",
			DisplayName: "MySQL",
			Schemes:     []string{"mysql"},
		},
		Factory: func(ctx context.Context, name, rawURL string, opts datasource.PoolOptions) (orm.Engine, error) {
			return NewEngine(ctx, name, rawURL, opts)
		},
	})
}
