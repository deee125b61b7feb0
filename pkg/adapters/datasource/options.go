package datasource

import "time"

const (
	DefaultPoolMaxConns        = 10
	DefaultPoolMinConns        = 1
	DefaultConnMaxIdleTime     = 5 * time.Minute
	DefaultConnectRetryTimeout = 30 * time.Second
)

// PoolOptions configures the connection pool of one engine.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	ConnMaxIdleTime time.Duration
}

// WithDefaults fills unset options.
func (o PoolOptions) WithDefaults() PoolOptions {
	if o.MaxConns <= 0 {
		o.MaxConns = DefaultPoolMaxConns
	}
	if o.MinConns <= 0 {
		o.MinConns = DefaultPoolMinConns
	}
	if o.MinConns > o.MaxConns {
		o.MinConns = o.MaxConns
	}
	if o.ConnMaxIdleTime <= 0 {
		o.ConnMaxIdleTime = DefaultConnMaxIdleTime
	}
	return o
}
