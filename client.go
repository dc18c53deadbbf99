package martsearch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/martsearch/internal/app"
	"github.com/kailas-cloud/martsearch/internal/config"
	"github.com/kailas-cloud/martsearch/internal/dataset"
	searchuc "github.com/kailas-cloud/martsearch/internal/usecase/search"
)

// Internal interfaces for substitution in tests.
type searchUseCase interface {
	Search(ctx context.Context, query string, page int, useCache bool) (*searchuc.Result, error)
	ClearCache(ctx context.Context) error
	Datasets() []dataset.Config
}

// Client is the martsearch entry point.
type Client struct {
	searchSvc searchUseCase
	healthSvc healthUseCase
	closer    func()
	obs       *observer
}

// New loads configuration and wires the client. The context bounds the cache
// readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	conf, err := loadConfig(cfg)
	if err != nil {
		return nil, err
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, conf, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("martsearch: %w", err)
	}

	return &Client{
		searchSvc: a.Search,
		healthSvc: a.Health,
		closer:    a.Close,
		obs:       obs,
	}, nil
}

func loadConfig(cfg *clientConfig) (config.Config, error) {
	var (
		conf config.Config
		err  error
	)
	switch {
	case cfg.configYAML != nil:
		conf, err = config.Parse(cfg.configYAML)
	case cfg.configPath != "":
		conf, err = config.LoadFile(cfg.configPath)
	default:
		return config.Config{}, errors.New("martsearch: configuration required (use WithConfigFile or WithConfigYAML)")
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("martsearch: %w", err)
	}
	if cfg.workers > 0 {
		conf.Search.Workers = cfg.workers
	}
	return conf, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Search runs one aggregated search. The error is non-nil only when the index
// fails; the returned Result then carries the index error in Errors.
func (c *Client) Search(ctx context.Context, query string, opts ...SearchOption) (res *Result, err error) {
	sc := searchConfig{page: 1, useCache: true}
	for _, o := range opts {
		o(&sc)
	}

	start := time.Now()
	partial := 0
	defer func() { c.obs.observe("search", start, partial, err) }()

	r, err := c.searchSvc.Search(ctx, query, sc.page, sc.useCache)
	if r == nil {
		if err == nil {
			err = errors.New("martsearch: empty search result")
		}
		return nil, fmt.Errorf("search: %w", err)
	}
	res = resultFromInternal(r)
	if err != nil {
		return res, fmt.Errorf("search: %w", err)
	}
	partial = len(r.DatasetErrors)
	return res, nil
}

// ClearCache drops cached index pages and dataset payloads.
func (c *Client) ClearCache(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("clear_cache", start, 0, err) }()

	if err = c.searchSvc.ClearCache(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Datasets lists the registered datasets in fan-out order.
func (c *Client) Datasets() []Dataset {
	cfgs := c.searchSvc.Datasets()
	out := make([]Dataset, 0, len(cfgs))
	for _, cfg := range cfgs {
		out = append(out, datasetFromInternal(cfg))
	}
	return out
}
