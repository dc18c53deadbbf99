// Package search implements the aggregator: index lookup, two-tier caching,
// concurrent dataset fan-out, join/merge and the secondary pass.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/martsearch/internal/dataset"
	"github.com/kailas-cloud/martsearch/internal/domain"
	logpkg "github.com/kailas-cloud/martsearch/internal/logger"
	"github.com/kailas-cloud/martsearch/internal/metrics"
)

// Defaults for the aggregator.
const (
	DefaultWorkers        = 10
	DefaultIndexTTL       = 36 * time.Hour
	DefaultDatasetTTL     = 24 * time.Hour
	DefaultDatasetTimeout = 30 * time.Second
)

// Service is the search aggregator.
type Service struct {
	index          Index
	cache          Cache
	datasets       []Dataset
	workers        int
	indexTTL       time.Duration
	datasetTTL     time.Duration
	datasetTimeout time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

// New creates an aggregator over an index, a cache and datasets in registry order.
func New(index Index, cache Cache, datasets []Dataset, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		index:          index,
		cache:          cache,
		datasets:       datasets,
		workers:        DefaultWorkers,
		indexTTL:       DefaultIndexTTL,
		datasetTTL:     DefaultDatasetTTL,
		datasetTimeout: DefaultDatasetTimeout,
		logger:         logger,
		now:            time.Now,
	}
}

// WithWorkers bounds the number of datasets queried at once.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// WithTTLs sets the index page and record payload TTLs.
func (s *Service) WithTTLs(index, dataset time.Duration) *Service {
	if index > 0 {
		s.indexTTL = index
	}
	if dataset > 0 {
		s.datasetTTL = dataset
	}
	return s
}

// WithDatasetTimeout sets the budget each fan-out worker waits for its dataset.
func (s *Service) WithDatasetTimeout(d time.Duration) *Service {
	if d > 0 {
		s.datasetTimeout = d
	}
	return s
}

// WithClock overrides the clock used for cache timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// log returns the service logger enriched with request fields carried by ctx.
func (s *Service) log(ctx context.Context) *zap.Logger {
	return logpkg.For(ctx, s.logger)
}

// Search runs one aggregated search. The returned error is non-nil only when the
// index fails; dataset failures are reported in Result.DatasetErrors and never
// stop other datasets from merging.
func (s *Service) Search(ctx context.Context, query string, page int, useCache bool) (*Result, error) {
	page = domain.NormalizePage(page)
	res := &Result{
		Query:         query,
		Aggregate:     make(domain.Aggregate),
		DatasetErrors: make(map[string]domain.SearchError),
	}
	defer func() { metrics.ObserveSearch(res.status()) }()

	entry, err := s.lookupIndex(ctx, query, page, useCache, res)
	if err != nil {
		se := domain.NewSearchError(indexKind(err), "", err)
		res.IndexError = &se
		s.log(ctx).Warn("index search failed", zap.String("query", query), zap.Int("page", page), zap.Error(err))
		return res, se
	}

	res.Keys = entry.Keys
	res.Pagination = entry.Pagination
	res.Highlighting = entry.Highlighting

	var stale []string
	for _, key := range entry.Keys {
		rec := domain.NewRecord(entry.Documents[key])
		res.Aggregate[key] = rec

		var cached recordEntry
		if useCache && s.load(ctx, metrics.LayerDataset, DatasetKey(key), &cached) {
			for name, p := range cached.Datasets {
				rec.SetPayload(name, p)
			}
			rec.CachedAt = cached.CachedAt
			res.Stats.CachedRecords++
			continue
		}
		stale = append(stale, key)
	}

	if len(stale) > 0 {
		s.fanOut(ctx, res, stale)
		s.secondarySort(ctx, res, stale)
		s.writeBack(ctx, res.Aggregate, stale)
	}
	res.Stats.FetchedRecords = len(stale)

	s.log(ctx).Debug("search completed",
		zap.String("query", query),
		zap.Int("page", page),
		zap.Bool("index_cached", res.Stats.IndexCached),
		zap.Int("cached_records", res.Stats.CachedRecords),
		zap.Int("fetched_records", res.Stats.FetchedRecords),
		zap.Int("datasets", res.Stats.Datasets),
		zap.Int("dataset_errors", len(res.DatasetErrors)),
	)
	return res, nil
}

// lookupIndex serves the index page from cache or the index, caching fresh pages.
func (s *Service) lookupIndex(ctx context.Context, query string, page int, useCache bool, res *Result) (indexEntry, error) {
	key := IndexKey(query, page)

	var entry indexEntry
	if useCache && s.load(ctx, metrics.LayerIndex, key, &entry) {
		res.Stats.IndexCached = true
		return entry, nil
	}

	p, err := s.index.Search(ctx, query, page)
	if err != nil {
		return indexEntry{}, fmt.Errorf("index search: %w", err)
	}

	entry = indexEntry{
		Keys:         p.Keys,
		Documents:    p.Documents,
		Pagination:   domain.NewPagination(page, s.index.PageSize(), p.Total),
		Highlighting: p.Highlighting,
		CachedAt:     s.now(),
	}
	if entry.Keys == nil {
		entry.Keys = []string{}
	}
	s.store(ctx, key, entry, s.indexTTL)
	return entry, nil
}

// writeBack stamps and caches the payloads of freshly fetched records.
func (s *Service) writeBack(ctx context.Context, agg domain.Aggregate, keys []string) {
	now := s.now()
	for _, key := range keys {
		rec := agg[key]
		rec.CachedAt = now
		s.store(ctx, DatasetKey(key), recordEntry{Datasets: rec.Datasets, CachedAt: now}, s.datasetTTL)
	}
}

// ClearCache drops both cache layers.
func (s *Service) ClearCache(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Datasets lists registered dataset configurations in registry order.
func (s *Service) Datasets() []dataset.Config {
	out := make([]dataset.Config, 0, len(s.datasets))
	for _, ds := range s.datasets {
		out = append(out, ds.Config())
	}
	return out
}

// QuickSearch returns raw index documents without aggregation.
func (s *Service) QuickSearch(ctx context.Context, query string, page int) ([]domain.Document, error) {
	docs, err := s.index.QuickSearch(ctx, query, domain.NormalizePage(page))
	if err != nil {
		return nil, domain.NewSearchError(indexKind(err), "", err)
	}
	return docs, nil
}

// Count returns the number of index documents matching a query.
func (s *Service) Count(ctx context.Context, query string) (int, error) {
	n, err := s.index.Count(ctx, query)
	if err != nil {
		return 0, domain.NewSearchError(indexKind(err), "", err)
	}
	return n, nil
}

// indexKind classifies an index failure; anything unrecognized counts as unavailable.
func indexKind(err error) domain.ErrorKind {
	if k := domain.KindOf(err); k == domain.KindIndexSearch {
		return k
	}
	return domain.KindIndexUnavailable
}

// --- Fan-out ---

type outcome struct {
	results  dataset.Results
	err      error
	skipped  bool
	duration time.Duration
}

// fanOut queries every dataset concurrently, bounded by the worker count. Each
// worker writes only its own slot; merging happens after the barrier in registry
// order.
func (s *Service) fanOut(ctx context.Context, res *Result, keys []string) {
	terms := groupTerms(res.Aggregate, keys)
	outcomes := make([]outcome, len(s.datasets))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, ds := range s.datasets {
		g.Go(func() error {
			outcomes[i] = s.runDataset(ctx, ds, terms[ds.JoinedIndexField()])
			return nil
		})
	}
	_ = g.Wait()

	primary := s.index.PrimaryField()
	for i, ds := range s.datasets {
		o := outcomes[i]
		name := ds.Name()
		if o.skipped {
			continue
		}
		res.Stats.Datasets++

		if o.err != nil {
			kind := datasetKind(o.err)
			res.DatasetErrors[name] = domain.NewSearchError(kind, name, o.err)
			metrics.ObserveDatasetRequest(name, statusOf(kind), o.duration)
			s.log(ctx).Warn("dataset search failed",
				zap.String("dataset", name),
				zap.String("kind", string(kind)),
				zap.Duration("duration", o.duration),
				zap.Error(o.err),
			)
			continue
		}
		metrics.ObserveDatasetRequest(name, "ok", o.duration)

		if ds.JoinedIndexField() == primary {
			mergeDirect(res.Aggregate, keys, name, o.results)
		} else {
			mergeIndirect(res.Aggregate, keys, ds.JoinedIndexField(), name, ds.MergeMode(), o.results)
		}
	}
}

// runDataset queries one dataset within its own budget. Caller cancellation does
// not reach the dataset; a dataset that ignores its context is abandoned at the
// deadline. Panics are reported as data source errors.
func (s *Service) runDataset(parent context.Context, ds Dataset, terms []string) outcome {
	if len(terms) == 0 {
		return outcome{skipped: true}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.datasetTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("dataset %s panicked: %v: %w", ds.Name(), r, domain.ErrDataSource)}
			}
		}()
		results, err := ds.Search(ctx, terms)
		done <- outcome{results: results, err: err}
	}()

	select {
	case o := <-done:
		o.duration = time.Since(start)
		return o
	case <-ctx.Done():
		return outcome{
			err:      fmt.Errorf("dataset %s: no response within %s: %w", ds.Name(), s.datasetTimeout, domain.ErrDataSourceTimeout),
			duration: time.Since(start),
		}
	}
}

// secondarySort runs each dataset's secondary strategy once over the whole aggregate.
// Cached records reach the strategies as copies, so only fresh records keep edits.
func (s *Service) secondarySort(ctx context.Context, res *Result, fresh []string) {
	var view domain.Aggregate
	for _, ds := range s.datasets {
		strategy := ds.SecondarySort()
		if strategy == nil {
			continue
		}
		if view == nil {
			view = secondaryView(res.Aggregate, fresh)
		}
		name := ds.Name()
		if err := runSecondary(ctx, strategy, name, view, fresh); err != nil {
			if _, failed := res.DatasetErrors[name]; !failed {
				res.DatasetErrors[name] = domain.NewSearchError(domain.KindDataSource, name, err)
			}
			s.log(ctx).Warn("secondary sort failed", zap.String("dataset", name), zap.Error(err))
		}
	}
}

// secondaryView shares fresh records with agg and deep-copies the rest.
func secondaryView(agg domain.Aggregate, fresh []string) domain.Aggregate {
	isFresh := make(map[string]bool, len(fresh))
	for _, k := range fresh {
		isFresh[k] = true
	}
	view := make(domain.Aggregate, len(agg))
	for k, rec := range agg {
		if isFresh[k] {
			view[k] = rec
		} else {
			view[k] = rec.Clone()
		}
	}
	return view
}

func runSecondary(ctx context.Context, strategy dataset.SecondarySortStrategy, name string, agg domain.Aggregate, fresh []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("secondary sort panicked: %v", r)
		}
	}()
	return strategy.SecondarySort(ctx, name, agg, fresh)
}

func datasetKind(err error) domain.ErrorKind {
	if k := domain.KindOf(err); k == domain.KindDataSourceTimeout {
		return k
	}
	return domain.KindDataSource
}

func statusOf(kind domain.ErrorKind) string {
	if kind == domain.KindDataSourceTimeout {
		return "timeout"
	}
	return "error"
}
