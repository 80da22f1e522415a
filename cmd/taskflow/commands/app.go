package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/taskflow/core/internal/adapters/repository"
	"github.com/taskflow/core/internal/adapters/storage"
	"github.com/taskflow/core/internal/application/services"
	"github.com/taskflow/core/internal/infrastructure/config"
	"github.com/taskflow/core/internal/infrastructure/database"
	"github.com/taskflow/core/internal/infrastructure/logger"
	"github.com/taskflow/core/internal/infrastructure/metrics"
	"github.com/taskflow/core/internal/infrastructure/server"
	"github.com/taskflow/core/internal/ports"
)

// app holds the process-wide collaborators. There is exactly one store
// and one manager per process; both are closed with the app.
type app struct {
	cfg      *config.Config
	logger   *logger.Logger
	registry *prometheus.Registry
	kv       ports.KeyValueStore
	db       *database.DB
	manager  *services.TaskManager
	checks   map[string]server.HealthCheck
}

// newApp loads configuration, opens the configured backend and builds
// the task manager over it. The collection is not loaded yet.
func newApp(ctx context.Context, v *viper.Viper) (*app, error) {
	cfg, err := config.LoadWith(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   appLogger,
		registry: prometheus.NewRegistry(),
		checks:   make(map[string]server.HealthCheck),
	}

	if err := a.openStore(ctx); err != nil {
		appLogger.Close()
		return nil, err
	}

	var storeMetrics *metrics.StoreMetrics
	if cfg.Metrics.Enabled {
		storeMetrics = metrics.NewStoreMetrics(a.registry)
	}

	repo := repository.NewTaskRepository(a.kv, repository.Options{
		Key:     cfg.Storage.Key,
		Latency: cfg.Storage.Latency,
		Seed:    cfg.Storage.Seed,
		Logger:  appLogger,
		Metrics: storeMetrics,
	})
	a.manager = services.NewTaskManager(repo, appLogger, nil)

	appLogger.Debugw("Task store ready",
		"backend", cfg.Storage.Backend,
		"key", cfg.Storage.Key,
		"latency", cfg.Storage.Latency,
	)

	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.BackendFile:
		a.kv = storage.NewFileStore(a.cfg.Storage.Path)

	case config.BackendMemory:
		a.kv = storage.NewMemoryStore()

	case config.BackendRedis:
		client, err := storage.NewRedisClient(ctx, a.cfg.Redis)
		if err != nil {
			return err
		}
		a.kv = storage.NewRedisStore(client, a.cfg.Redis.Prefix)
		a.checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}

	case config.BackendPostgres:
		db, err := a.openDatabase()
		if err != nil {
			return err
		}
		if err := db.Migrate(database.MigrateUp); err != nil {
			db.Close()
			return err
		}
		a.db = db
		a.kv = storage.NewPostgresStore(db.DB)
		a.checks["database"] = db.HealthCheck

	default:
		return fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
	return nil
}

func (a *app) openDatabase() (*database.DB, error) {
	db, err := database.New(a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// load fetches the collection. A load failure is reported with the
// message the view shows.
func (a *app) load(ctx context.Context) error {
	if err := a.manager.Load(ctx); err != nil {
		if msg := a.manager.View().Error; msg != "" {
			return fmt.Errorf("%s: %w", msg, err)
		}
		return err
	}
	return nil
}

func (a *app) Close() error {
	var errs []error
	if a.kv != nil {
		errs = append(errs, a.kv.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	a.logger.Close()
	return errors.Join(errs...)
}
