package sqlite

import (
	"context"

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

// SQLite is always compiled in; it is the embedded default and the test engine.
func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "sqlite",
			DisplayName: "SQLite",
			Schemes:     []string{"sqlite", "sqlite3", "file"},
		},
		Factory: func(ctx context.Context, name, rawURL string, opts datasource.PoolOptions) (orm.Engine, error) {
			return NewEngine(ctx, name, rawURL, opts)
		},
	})
}
