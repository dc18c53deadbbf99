// Package datasource defines the data source contract and builds the configured sources.
package datasource

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/martsearch/internal/config"
	"github.com/kailas-cloud/martsearch/internal/datasource/biomart"
	"github.com/kailas-cloud/martsearch/internal/datasource/dummy"
	"github.com/kailas-cloud/martsearch/internal/datasource/filesystem"
	"github.com/kailas-cloud/martsearch/internal/domain"
)

// Supported data source kinds.
const (
	KindBiomart    = "biomart"
	KindFilesystem = "filesystem"
	KindDummy      = "dummy"
)

// DataSource returns raw rows for a query. Implementations must be safe for
// concurrent use and report failures as domain.ErrDataSource or domain.ErrDataSourceTimeout.
type DataSource interface {
	Search(ctx context.Context, q domain.Query) ([]domain.Row, error)
}

// BulkFetcher is implemented by sources that support full exports.
type BulkFetcher interface {
	FetchAll(ctx context.Context, filters map[string][]string, attributes []string) (domain.Table, error)
}

// requiredEnforcer is implemented by sources that drop rows missing required attributes themselves.
type requiredEnforcer interface {
	EnforcesRequired() bool
}

// EnforcesRequired reports whether ds already guarantees required attributes.
func EnforcesRequired(ds DataSource) bool {
	e, ok := ds.(requiredEnforcer)
	return ok && e.EnforcesRequired()
}

// Registry holds data sources by name.
type Registry map[string]DataSource

// Get returns a source by name.
func (r Registry) Get(name string) (DataSource, bool) {
	ds, ok := r[name]
	return ds, ok
}

// Names returns registered names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build creates every configured data source. Unknown kinds fail with domain.ErrInvalidConfig.
func Build(cfgs map[string]config.DataSourceConfig, logger *zap.Logger) (Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := make(Registry, len(cfgs))
	for name, cfg := range cfgs {
		ds, err := build(name, cfg, logger)
		if err != nil {
			return nil, err
		}
		reg[name] = ds
	}
	return reg, nil
}

func build(name string, cfg config.DataSourceConfig, logger *zap.Logger) (DataSource, error) {
	switch cfg.Kind {
	case KindBiomart:
		if cfg.URL == "" || cfg.Dataset == "" {
			return nil, fmt.Errorf("datasource %q: url and dataset are required: %w", name, domain.ErrInvalidConfig)
		}
		return biomart.New(&biomart.Config{
			URL:         cfg.URL,
			Dataset:     cfg.Dataset,
			Timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
			BulkTimeout: time.Duration(cfg.BulkTimeoutSec) * time.Second,
			RatePerSec:  cfg.RatePerSec,
			RetryMax:    cfg.RetryMax,
			Logger:      logger.With(zap.String("datasource", name)),
		}), nil
	case KindFilesystem:
		src, err := filesystem.New(cfg.Root, cfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("datasource %q: %w", name, err)
		}
		return src, nil
	case KindDummy:
		return dummy.New(cfg.Rows), nil
	default:
		return nil, fmt.Errorf("datasource %q: unknown kind %q: %w", name, cfg.Kind, domain.ErrInvalidConfig)
	}
}
