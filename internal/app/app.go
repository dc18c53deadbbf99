// Package app wires configuration into the running object graph: cache backend,
// search index client, data sources, datasets and the search and health services.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/martsearch/internal/cache"
	"github.com/kailas-cloud/martsearch/internal/config"
	"github.com/kailas-cloud/martsearch/internal/dataset"
	"github.com/kailas-cloud/martsearch/internal/datasource"
	"github.com/kailas-cloud/martsearch/internal/db"
	dbLeveldb "github.com/kailas-cloud/martsearch/internal/db/leveldb"
	dbRedis "github.com/kailas-cloud/martsearch/internal/db/redis"
	"github.com/kailas-cloud/martsearch/internal/transport/solr"
	healthuc "github.com/kailas-cloud/martsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/martsearch/internal/usecase/search"
)

// Cache drivers accepted in cache.driver.
const (
	DriverMemory  = "memory"
	DriverRedis   = "redis"
	DriverLevelDB = "leveldb"
)

// CacheBackend is a cache that can also report its own liveness.
type CacheBackend interface {
	cache.Cache
	Ping(ctx context.Context) error
}

// App is the wired object graph.
type App struct {
	Config  config.Config
	Index   *solr.Client
	Cache   CacheBackend
	Sources datasource.Registry
	Search  *searchuc.Service
	Health  *healthuc.Service

	store db.Store
}

// New builds every component from cfg. On error, anything already opened is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg}

	if err := a.buildCache(ctx, logger); err != nil {
		a.Close()
		return nil, err
	}

	a.Index = solr.NewClient(&solr.Config{
		URL:          cfg.Index.URL,
		PrimaryField: cfg.Index.PrimaryField,
		PageSize:     cfg.Index.PageSize,
		Sort:         cfg.Index.Sort,
		Timeout:      time.Duration(cfg.Index.TimeoutSec) * time.Second,
		RetryMax:     cfg.Index.RetryMax,
		Logger:       logger.Named("solr"),
	})

	var err error
	a.Sources, err = datasource.Build(cfg.DataSources, logger.Named("datasource"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build data sources: %w", err)
	}

	built, err := dataset.Build(cfg.Datasets, a.Sources, dataset.NewStrategies(), dataset.Deps{Logger: logger.Named("dataset")})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build datasets: %w", err)
	}
	datasets := make([]searchuc.Dataset, 0, len(built))
	for _, ds := range built {
		datasets = append(datasets, ds)
	}

	a.Search = searchuc.New(a.Index, a.Cache, datasets, logger.Named("search")).
		WithWorkers(cfg.Search.Workers).
		WithTTLs(cfg.Search.IndexTTL, cfg.Search.DatasetTTL).
		WithDatasetTimeout(cfg.Search.DatasetTimeout)
	a.Health = healthuc.New(a.Cache, a.Index)

	logger.Info("Wired search",
		zap.String("cache_driver", cfg.Cache.Driver),
		zap.Strings("datasources", a.Sources.Names()),
		zap.Int("datasets", len(datasets)),
		zap.Int("workers", cfg.Search.Workers),
	)
	return a, nil
}

// buildCache creates the cache backend selected by cache.driver.
func (a *App) buildCache(ctx context.Context, logger *zap.Logger) error {
	cc := a.Config.Cache

	var store db.Store
	switch cc.Driver {
	case DriverMemory, "":
		a.Cache = cache.NewMemory()
		return nil
	case DriverRedis:
		rs, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:       cc.Addrs,
			Username:    cc.Username,
			Password:    cc.Password,
			DB:          cc.DB,
			DialTimeout: time.Duration(cc.DialTimeoutSec) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("create redis store: %w", err)
		}
		store = rs
	case DriverLevelDB:
		ls, err := dbLeveldb.Open(cc.Path)
		if err != nil {
			return fmt.Errorf("open leveldb store: %w", err)
		}
		store = ls
	default:
		return fmt.Errorf("unknown cache driver %q", cc.Driver)
	}
	a.store = store

	if err := store.WaitForReady(ctx, time.Duration(cc.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("cache not ready: %w", err)
	}
	logger.Info("Connected to cache store", zap.String("driver", cc.Driver), zap.Strings("addrs", cc.Addrs))

	s, err := cache.NewStore(store, cc.KeyPrefix, cc.Compress)
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}
	a.Cache = s
	return nil
}

// Close releases the cache store, if any.
func (a *App) Close() {
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
}
