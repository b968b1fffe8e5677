package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/crud"
	"github.com/Ramsey-B/fern/pkg/assets"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/routes/records"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/seed"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

// app holds everything a command needs once startup has finished.
type app struct {
	cfg      *config.Config
	logger   ectologger.Logger
	db       database.DB
	registry *schema.Registry
	core     *crud.Core
	remover  assets.Remover
	redis    *assets.RedisRemover
	producer *events.Producer
}

// withApp starts every dependency in order, runs fn and stops them again.
func withApp(ctx context.Context, cfg *config.Config, logger ectologger.Logger, fn func(context.Context, *app) error) error {
	a := &app{cfg: cfg, logger: logger}
	s := a.startup()
	if err := s.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.Stop(stopCtx); err != nil {
			logger.WithError(err).Warn("Failed to stop dependencies")
		}
	}()
	return fn(ctx, a)
}

func (a *app) startup() *startup.Startup {
	s := startup.NewStartup(a.logger, a.cfg.StartupMaxAttempts)
	var shutdownTracing func(context.Context) error

	s.AddDependency(&startup.Dependency{
		Name: "tracing",
		OnStart: func(ctx context.Context) error {
			shutdown, err := tracing.Setup(ctx, tracing.Config{
				ServiceName: a.cfg.AppName,
				Exporter:    a.cfg.TracingExporter,
				OTLP: exporters.OTLPConfig{
					Endpoint: a.cfg.OTLPEndpoint,
					Protocol: a.cfg.OTLPProtocol,
					Insecure: a.cfg.OTLPInsecure,
					Timeout:  a.cfg.OTLPTimeout,
					Gzip:     a.cfg.OTLPGzip,
				},
			}, a.logger)
			shutdownTracing = shutdown
			return err
		},
		OnStop: func(ctx context.Context) error {
			if shutdownTracing == nil {
				return nil
			}
			return shutdownTracing(ctx)
		},
	})

	s.AddDependency(&startup.Dependency{
		Name:     "schema",
		Requires: []string{"tracing"},
		OnStart: func(ctx context.Context) error {
			entities, err := schema.Load(a.cfg.SchemaFile)
			if err != nil {
				return err
			}
			a.registry, err = schema.NewRegistry(entities, a.logger)
			return err
		},
	})

	s.AddDependency(&startup.Dependency{
		Name:     "database",
		Requires: []string{"tracing"},
		OnStart: func(ctx context.Context) error {
			db, err := database.Connect(ctx, database.ConnectionConfig{
				Host:            a.cfg.DatabaseHost,
				Port:            a.cfg.DatabasePort,
				User:            a.cfg.DatabaseUserName,
				Password:        a.cfg.DatabasePassword,
				Name:            a.cfg.DatabaseName,
				SSLMode:         a.cfg.DatabaseSSLMode,
				MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
			}, a.logger)
			if err != nil {
				return err
			}
			a.db = db
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	})

	s.AddDependency(&startup.Dependency{
		Name:     "migrations",
		Requires: []string{"database"},
		OnStart: func(ctx context.Context) error {
			instance, ok := a.db.(*database.DatabaseInstance)
			if !ok {
				return fmt.Errorf("migrations need a postgres connection")
			}
			return database.NewMigrationService(a.logger, &database.MigrationConfig{
				FolderPath:   a.cfg.DatabaseMigrationFolderPath,
				Version:      uint(a.cfg.DatabaseMigrationVersion),
				Force:        a.cfg.DatabaseMigrationForce,
				AutoRollback: a.cfg.DatabaseMigrationAutoRollback,
			}).MigratePostgres(instance.DB, a.cfg.DatabaseName)
		},
	})

	s.AddDependency(&startup.Dependency{
		Name:    "assets",
		OnStart: a.startAssets,
		OnStop: func(ctx context.Context) error {
			if closer, ok := a.remover.(interface{ Close() error }); ok {
				return closer.Close()
			}
			return nil
		},
	})

	s.AddDependency(&startup.Dependency{
		Name: "events",
		OnStart: func(ctx context.Context) error {
			if !a.cfg.KafkaEnabled {
				return nil
			}
			a.producer = events.NewProducer(events.ProducerConfig{
				Brokers:      a.cfg.KafkaBrokers,
				Topic:        a.cfg.KafkaOutputTopic,
				BatchSize:    a.cfg.KafkaBatchSize,
				BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
				RequiredAcks: a.cfg.KafkaRequiredAcks,
				Compression:  a.cfg.KafkaCompression,
			}, a.logger)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if a.producer == nil {
				return nil
			}
			return a.producer.Close()
		},
	})

	s.AddDependency(&startup.Dependency{
		Name:     "graph",
		Requires: []string{"schema"},
		OnStart:  a.exportGraph,
	})

	s.AddDependency(&startup.Dependency{
		Name:     "core",
		Requires: []string{"schema", "migrations", "assets", "events"},
		OnStart: func(ctx context.Context) error {
			var publisher events.Publisher = events.Noop{}
			if a.producer != nil {
				publisher = a.producer
			}
			pager := pagination.NewEngine(a.logger, a.cfg.DefaultPerPage, a.cfg.MaxPerPage)
			a.core = crud.NewCore(a.db, a.registry, pager, a.remover, publisher, a.logger)
			return nil
		},
	})

	s.AddDependency(&startup.Dependency{
		Name:     "container",
		Requires: []string{"core"},
		OnStart:  a.registerDependencies,
	})

	return s
}

// registerDependencies makes the core, logger and database resolvable by route
// handlers through the default ectoinject container.
func (a *app) registerDependencies(ctx context.Context) error {
	cfg := ectoinject.DefaultContainerConfig
	cfg.LoggerConfig = &ectocontainer.DIContainerLoggerConfig{
		Enabled: true,
		LogFunc: func(ctx context.Context, level, msg string) {
			a.logger.WithContext(ctx).WithField("di_level", level).Debug(msg)
		},
	}

	// a retried startup reuses the container registered by the first attempt
	container := ectoinject.GetContainer(cfg.ID)
	if container == nil {
		var err error
		if container, err = ectoinject.NewDIContainer(cfg); err != nil {
			return fmt.Errorf("failed to create dependency container: %w", err)
		}
	}

	if err := ectoinject.RegisterInstance[records.Service](container, a.core); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, a.logger); err != nil {
		return err
	}
	return ectoinject.RegisterInstance[database.DB](container, a.db)
}

func (a *app) startAssets(ctx context.Context) error {
	switch a.cfg.AssetBackend {
	case "", "none":
		a.remover = assets.Noop{}
	case "gcs":
		r, err := assets.NewGCSRemover(ctx, assets.GCSConfig{
			Bucket:          a.cfg.AssetGCSBucket,
			CredentialsFile: a.cfg.AssetGCSCredentials,
		}, a.logger)
		if err != nil {
			return err
		}
		a.remover = r
	case "redis":
		r := assets.NewRedisRemover(assets.RedisConfig{
			Host:      a.cfg.RedisHost,
			Port:      a.cfg.RedisPort,
			Password:  a.cfg.RedisPassword,
			DB:        a.cfg.RedisDB,
			KeyPrefix: a.cfg.RedisAssetKeyPrefix,
		}, a.logger)
		if err := r.Ping(ctx); err != nil {
			r.Close() //nolint:errcheck
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		a.remover, a.redis = r, r
	default:
		return fmt.Errorf("unknown asset backend %q", a.cfg.AssetBackend)
	}
	return nil
}

// exportGraph mirrors the association graph into the graph database when enabled.
func (a *app) exportGraph(ctx context.Context) error {
	if !a.cfg.GraphExportEnabled {
		return nil
	}
	client, err := graph.NewClient(graph.Config{
		Host:     a.cfg.GraphDBHost,
		Port:     a.cfg.GraphDBPort,
		Username: a.cfg.GraphDBUser,
		Password: a.cfg.GraphDBPassword,
		Database: a.cfg.GraphDBName,
	}, a.logger)
	if err != nil {
		return err
	}
	defer client.Close(ctx) //nolint:errcheck

	if err := client.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("failed to reach graph database: %w", err)
	}
	return graph.NewExporter(client, a.logger).Export(ctx, a.registry)
}

func runSeed(ctx context.Context, a *app) error {
	counts, err := seed.NewSeeder(a.db, a.core, a.logger).Run(ctx, a.cfg.SeedDir, a.registry.SeedOrder())
	if err != nil {
		return err
	}
	a.logger.WithField("rows", counts).Info("Seed complete")
	return nil
}
