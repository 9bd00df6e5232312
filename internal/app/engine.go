package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-rea/internal/observability"
	"github.com/odyssey-erp/odyssey-rea/internal/observation"
	"github.com/odyssey-erp/odyssey-rea/internal/observation/memstore"
	"github.com/odyssey-erp/odyssey-rea/internal/observation/pgstore"
	"github.com/odyssey-erp/odyssey-rea/internal/observation/rediscache"
	"github.com/odyssey-erp/odyssey-rea/internal/observation/sqlitestore"
	"github.com/odyssey-erp/odyssey-rea/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-rea/internal/platform/db"
)

// EngineParams groups the process-level collaborators of the engine.
type EngineParams struct {
	Config   *Config
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Rebuilds observation.RebuildScheduler
}

// Engine owns the Service and the connections backing it.
type Engine struct {
	Service *observation.Service
	Redis   *redis.Client
	closers []func() error
}

// NewEngine opens the configured event store, the optional Redis cache and
// locker, and builds the Service over them.
func NewEngine(ctx context.Context, params EngineParams) (*Engine, error) {
	cfg := params.Config
	if cfg == nil {
		return nil, errors.New("app: engine requires config")
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := observation.ParseNegativePolicy(cfg.NegativeQuantityPolicy)
	if err != nil {
		return nil, err
	}

	engine := &Engine{}
	store, err := engine.openStore(ctx, cfg)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	var (
		projections observation.ProjectionCache
		locker      observation.Locker = observation.NewLocalLocker()
	)
	// A process-local snapshot is only safe when this process owns the log.
	// Shared stores without Redis fold every read from the log instead.
	if !sharedStore(cfg.EventStore) {
		projections = observation.NewMemoryCache()
	}
	if cfg.RedisEnabled() {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			_ = engine.Close()
			return nil, err
		}
		engine.Redis = client
		engine.closers = append(engine.closers, client.Close)
		projections = rediscache.NewCache(client, cfg.ProjectionCacheTTL)
		locker = rediscache.NewLocker(client, cfg.LockTTL)
	}

	service, err := observation.NewService(observation.ServiceConfig{
		Store:          store,
		Cache:          projections,
		Locker:         locker,
		Units:          observation.NewUnitRegistry(cfg.KnownUnits...),
		NegativePolicy: policy,
		Rebuilds:       params.Rebuilds,
		Metrics:        params.Metrics,
		Logger:         logger,
	})
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	engine.Service = service
	logger.Info("engine ready",
		slog.String("event_store", cfg.EventStore),
		slog.Bool("redis", cfg.RedisEnabled()),
		slog.Bool("snapshots", projections != nil),
		slog.String("negative_policy", string(policy)),
	)
	return engine, nil
}

// sharedStore reports whether other processes may append to the same log.
func sharedStore(kind string) bool {
	return kind == StorePostgres || kind == StoreSQLite
}

func (e *Engine) openStore(ctx context.Context, cfg *Config) (observation.EventStore, error) {
	switch cfg.EventStore {
	case StoreMemory, "":
		return memstore.New(), nil
	case StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() error {
			pool.Close()
			return nil
		})
		store := pgstore.New(pool)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("app: migrate event store: %w", err)
		}
		return store, nil
	case StoreSQLite:
		store, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("app: unknown event store %q", cfg.EventStore)
	}
}

// Close releases every connection in reverse order of opening.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
