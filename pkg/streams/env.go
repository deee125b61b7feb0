package streams

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-streams/pkg/auth"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

// Env is the per-connection context actions run in. It is owned by one
// connection and never shared.
type Env struct {
	User   *auth.User
	Binds  map[string]orm.Engine
	Logger *zap.Logger
}

// WithSession runs fn in a session scope over the connection's engines.
func (e *Env) WithSession(ctx context.Context, fn func(*orm.Session) error) error {
	return orm.WithSession(ctx, e.Binds, e.Logger, fn)
}
