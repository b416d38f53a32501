package main

import (
	"context"
	"fmt"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/pkg/metrics"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/config"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/repository"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/service"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/infrastructure/cache"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/infrastructure/database"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/usecase"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/common"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/database/mongodb"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/database/postgres"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/database/redis"
)

// app holds the process-wide dependencies shared by every target
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	metrics  *metrics.Collector
	mongo    *mongodb.Client
	redis    *redis.Client
	registry *service.Registry
	source   *database.MongoSourceRepository
}

func newApp(ctx context.Context, configFile string) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: service.NewRegistry(),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector(cfg.Metrics.Namespace)
	}

	a.mongo, err = mongodb.NewClient(ctx, &cfg.MongoDB, logger.Logger)
	if err != nil {
		a.metrics.RecordConnectAttempt("mongodb", "failure")
		logger.Cleanup()
		return nil, common.ErrDatabaseConnection(err)
	}
	a.metrics.RecordConnectAttempt("mongodb", "success")
	a.source = database.NewMongoSourceRepository(a.mongo, cfg.Migration.QueryTimeout, logger)

	if cfg.Redis.Enabled {
		a.redis, err = redis.NewClient(ctx, &cfg.Redis, logger.Logger)
		if err != nil {
			// the cache is an optimisation; run without it
			a.metrics.RecordConnectAttempt("redis", "failure")
			logger.Warn("ID cache unavailable, resolving from PostgreSQL", logging.Err(err))
			a.redis = nil
		} else {
			a.metrics.RecordConnectAttempt("redis", "success")
		}
	}

	logger.Info("Replication service initialized",
		logging.String("version", cfg.Service.Version),
		logging.String("environment", cfg.Service.Environment),
		logging.Strings("targets", cfg.TargetNames()))

	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close Redis", logging.Err(err))
		}
	}
	if err := a.mongo.Close(ctx); err != nil {
		a.logger.Warn("Failed to close MongoDB", logging.Err(err))
	}
	a.logger.Cleanup()
}

// targetStack is everything bound to one target schema
type targetStack struct {
	name      string
	client    *postgres.Client
	target    *database.PostgresTargetRepository
	states    *database.PostgresSyncStateRepository
	processor *usecase.RecordProcessor
}

func (s *targetStack) Close() {
	_ = s.client.Close()
}

func (a *app) openTarget(ctx context.Context, nt config.NamedTarget) (*targetStack, error) {
	logger := a.logger.WithFields(logging.String("target", nt.Name))

	client, err := postgres.Connect(ctx, nt.Postgres, logger.Logger)
	if err != nil {
		a.metrics.RecordConnectAttempt("postgres", "failure")
		return nil, err
	}
	a.metrics.RecordConnectAttempt("postgres", "success")

	target := database.NewPostgresTargetRepository(client, logger)

	var ids repository.IDTranslator = database.NewPostgresIDTranslator(client)
	if a.redis != nil {
		ids = cache.NewRedisIDCache(ids, a.redis, client.Schema(), logger, a.metrics)
	}

	writer := usecase.NewUpsertWriter(target, ids, logger)
	return &targetStack{
		name:      nt.Name,
		client:    client,
		target:    target,
		states:    database.NewPostgresSyncStateRepository(client, logger),
		processor: usecase.NewRecordProcessor(a.registry, ids, writer, logger),
	}, nil
}

func (a *app) migrationTargets(selector string) ([]usecase.MigrationTarget, error) {
	named, err := a.cfg.ResolveTargets(selector)
	if err != nil {
		return nil, err
	}

	targets := make([]usecase.MigrationTarget, 0, len(named))
	for _, nt := range named {
		nt := nt
		targets = append(targets, usecase.MigrationTarget{
			Name: nt.Postgres.Schema,
			Open: func(ctx context.Context) (*usecase.MigrationDriver, func(), error) {
				stack, err := a.openTarget(ctx, nt)
				if err != nil {
					return nil, nil, err
				}
				driver := usecase.NewMigrationDriver(
					nt.Postgres.Schema,
					a.source,
					stack.target,
					stack.states,
					stack.processor,
					a.cfg.Migration.DriverConfig,
					a.logger,
					a.metrics,
				)
				return driver, stack.Close, nil
			},
		})
	}
	return targets, nil
}

func (a *app) verifier(stack *targetStack) *usecase.Verifier {
	return usecase.NewVerifier(a.source, stack.target, stack.processor, a.cfg.Migration.VerifyPageSize, a.logger.WithSchema(stack.client.Schema()), a.metrics)
}

func parseTypes(names []string) ([]entity.EntityType, error) {
	types := make([]entity.EntityType, 0, len(names))
	for _, name := range names {
		t, err := entity.ParseEntityType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}
