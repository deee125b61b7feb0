package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-streams/pkg/config"
	"github.com/ekaya-inc/ekaya-streams/pkg/logging"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
	"github.com/ekaya-inc/ekaya-streams/pkg/schema"
	"github.com/ekaya-inc/ekaya-streams/pkg/streams"
)

// app is what every command builds before doing its work: configuration,
// logger and the registries built from the schema file. Engines are
// opened by the commands that need them.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	mappers *orm.Registry
	streams *streams.Registry
}

func loadApp(version string) (*app, error) {
	cfg, err := config.Load(configPath, version)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a, err := buildApp(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	s, err := schema.Load(cfg.SchemaFile)
	if err != nil {
		return nil, err
	}
	mappers, err := s.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to register entities: %w", err)
	}
	for _, id := range mappers.DBIDs() {
		if _, ok := cfg.Databases[id]; !ok {
			return nil, fmt.Errorf("database %q is used by the schema but not bound in databases", id)
		}
	}
	registry, err := streams.Build(mappers, s.Streams, cfg.Streams.DefaultMaxLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to build streams: %w", err)
	}
	return &app{cfg: cfg, logger: logger, mappers: mappers, streams: registry}, nil
}
