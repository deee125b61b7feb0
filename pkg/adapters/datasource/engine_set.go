package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-streams/pkg/logging"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
	"github.com/ekaya-inc/ekaya-streams/pkg/retry"
)

// EngineSet owns one engine per bound database identifier.
// Engines are opened at boot and shared by every session.
type EngineSet struct {
	mu      sync.RWMutex
	engines map[string]orm.Engine
	closed  bool
	logger  *zap.Logger
}

// NewEngineSet wraps already opened engines keyed by db_id.
func NewEngineSet(engines map[string]orm.Engine, logger *zap.Logger) *EngineSet {
	if logger == nil {
		logger = zap.NewNop()
	}
	copied := make(map[string]orm.Engine, len(engines))
	for id, e := range engines {
		copied[id] = e
	}
	return &EngineSet{engines: copied, logger: logger}
}

// OpenEngines opens and pings an engine for every db_id -> URL binding.
// Transient failures are retried with backoff. On error every engine
// opened so far is closed.
func OpenEngines(ctx context.Context, bindings map[string]string, opts PoolOptions, logger *zap.Logger) (*EngineSet, error) {
	set := NewEngineSet(nil, logger)

	ids := make([]string, 0, len(bindings))
	for id := range bindings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rawURL := bindings[id]
		engine, err := openWithRetry(ctx, id, rawURL, opts)
		if err != nil {
			set.logger.Error("failed to open engine",
				zap.String("db_id", id),
				zap.String("url", logging.SanitizeURL(rawURL)),
				zap.String("error", logging.SanitizeError(err)),
			)
			set.Close()
			return nil, fmt.Errorf("failed to open engine for %s: %w", id, err)
		}
		set.engines[id] = engine
		set.logger.Info("opened engine",
			zap.String("db_id", id),
			zap.String("dialect", string(engine.Dialect())),
			zap.String("url", logging.SanitizeURL(rawURL)),
		)
	}
	return set, nil
}

func openWithRetry(ctx context.Context, id, rawURL string, opts PoolOptions) (orm.Engine, error) {
	connectCtx, cancel := context.WithTimeout(ctx, DefaultConnectRetryTimeout)
	defer cancel()

	engine, err := Open(connectCtx, id, rawURL, opts)
	if err != nil {
		return nil, err
	}
	err = retry.Do(connectCtx, retry.DefaultConfig(), func() error {
		pingCtx, cancel := context.WithTimeout(connectCtx, 5*time.Second)
		defer cancel()
		return engine.Ping(pingCtx)
	})
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	return engine, nil
}

// Binds returns the db_id -> engine routing table used by sessions.
func (s *EngineSet) Binds() map[string]orm.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]orm.Engine, len(s.engines))
	for id, e := range s.engines {
		out[id] = e
	}
	return out
}

// Engine returns the engine bound to db_id.
func (s *EngineSet) Engine(id string) (orm.Engine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.engines[id]
	return e, ok
}

// Ping checks every engine and returns the first failure.
func (s *EngineSet) Ping(ctx context.Context) error {
	for id, e := range s.Binds() {
		if err := e.Ping(ctx); err != nil {
			return fmt.Errorf("engine %s: %w", id, err)
		}
	}
	return nil
}

// Stats returns pool statistics of engines that report them, sorted by engine.
func (s *EngineSet) Stats() []PoolStats {
	var stats []PoolStats
	for _, e := range s.Binds() {
		if r, ok := e.(StatsReporter); ok {
			stats = append(stats, r.Stats())
		}
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Engine < stats[j].Engine })
	return stats
}

// Close closes every engine. Safe to call more than once.
func (s *EngineSet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, e := range s.engines {
		e.Close()
		s.logger.Debug("closed engine", zap.String("db_id", id))
	}
}
