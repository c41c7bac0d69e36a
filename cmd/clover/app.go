package main

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/db"
	"github.com/Ramsey-B/clover/pkg/clustercache"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/engine"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// app holds the started dependencies. Optional ones stay nil when disabled.
type app struct {
	cfg      *config.Config
	logger   ectologger.Logger
	runner   *startup.Startup
	db       database.DB
	redis    *redis.Client
	producer *kafka.Producer
	graph    *graph.Client
	engine   *engine.Engine
	checker  *health.Checker
}

// start brings up the database and every enabled backing service, then
// builds the engine on top of them.
func start(ctx context.Context, g *globals) (*app, error) {
	cfg, logger := g.cfg, g.logger
	a := &app{
		cfg:     cfg,
		logger:  logger,
		runner:  startup.NewStartup(logger, cfg.StartupMaxAttempts),
		checker: health.NewChecker(cfg.Version),
	}

	shutdownTracing := func(context.Context) error { return nil }
	a.runner.AddDependency(&startup.Func{
		Name: "tracing",
		StartFunc: func(ctx context.Context) error {
			shutdown, err := tracing.Init(ctx, cfg.Tracing())
			if err != nil {
				return err
			}
			shutdownTracing = shutdown
			return nil
		},
		StopFunc: func(ctx context.Context) error { return shutdownTracing(ctx) },
	})

	a.runner.AddDependency(&startup.Func{
		Name: "database",
		StartFunc: func(ctx context.Context) error {
			if cfg.DatabaseMigrateOnStart {
				if err := migrate(cfg, logger); err != nil {
					return err
				}
			}
			conn, err := database.Open(ctx, cfg.Database(), logger)
			if err != nil {
				return err
			}
			a.db = conn
			a.checker.Require("database", conn.PingContext)
			return nil
		},
		StopFunc: func(context.Context) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	})

	if cfg.RedisEnabled {
		a.runner.AddDependency(&startup.Func{
			Name: "redis",
			StartFunc: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, cfg.Redis(), logger)
				if err != nil {
					return err
				}
				a.redis = client
				a.checker.Require("redis", client.Ping)
				return nil
			},
			StopFunc: func(context.Context) error {
				if a.redis == nil {
					return nil
				}
				return a.redis.Close()
			},
		})
	}

	if cfg.KafkaEnabled {
		a.runner.AddDependency(&startup.Func{
			Name: "kafka-producer",
			StartFunc: func(context.Context) error {
				a.producer = kafka.NewProducer(cfg.KafkaProducer(), logger)
				return nil
			},
			StopFunc: func(context.Context) error {
				if a.producer == nil {
					return nil
				}
				return a.producer.Close()
			},
		})
	}

	if cfg.GraphEnabled {
		a.runner.AddDependency(&startup.Func{
			Name: "graph",
			StartFunc: func(ctx context.Context) error {
				client, err := graph.NewClient(cfg.Graph(), logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return err
				}
				a.graph = client
				a.checker.Optional("graph", client.VerifyConnectivity)
				return nil
			},
			StopFunc: func(ctx context.Context) error {
				if a.graph == nil {
					return nil
				}
				return a.graph.Close(ctx)
			},
		})
	}

	if err := a.runner.Start(ctx); err != nil {
		return nil, err
	}

	a.engine = engine.New(a.db, cfg.Engine(), logger, a.engineOptions()...)
	return a, nil
}

func (a *app) engineOptions() []engine.Option {
	var opts []engine.Option
	if a.redis != nil {
		locker := redis.NewLocker(a.redis, "")
		opts = append(opts, engine.WithLocker(clustercache.NewRedisLocker(locker, a.cfg.RebuildLockTTL, a.logger)))
	}
	if a.producer != nil {
		emitter := events.NewEmitter(a.producer, a.logger)
		opts = append(opts, engine.WithEvents(emitter), engine.WithListeners(emitter))
	}
	if a.graph != nil {
		projector := graph.NewProjector(a.graph, a.logger)
		opts = append(opts, engine.WithProjection(projector), engine.WithListeners(projector))
	}
	return opts
}

// consumer builds the batch.ready consumer that performs asynchronous
// rebuilds. It is nil unless Kafka and the consumer are enabled.
func (a *app) consumer() *kafka.Consumer {
	if !a.cfg.KafkaEnabled || !a.cfg.KafkaConsumerEnabled {
		return nil
	}
	handler := events.RebuildHandler(a.engine.Cache(), a.logger)
	return kafka.NewConsumer(a.cfg.KafkaConsumer(), a.logger, handler)
}

func (a *app) stop(ctx context.Context) {
	if err := a.runner.Stop(ctx); err != nil {
		a.logger.WithError(err).Error("Failed to stop dependencies")
	}
}

func migrate(cfg *config.Config, logger ectologger.Logger) error {
	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		FS:           db.Migrations,
		Root:         db.MigrationsRoot,
		Version:      cfg.DatabaseMigrationVersion,
		Force:        cfg.DatabaseMigrationForce,
		AutoRollback: cfg.DatabaseMigrationAutoRollback,
	})
	return ms.Migrate(cfg.Database())
}
