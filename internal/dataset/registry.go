package dataset

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/martsearch/internal/config"
	"github.com/kailas-cloud/martsearch/internal/datasource"
	"github.com/kailas-cloud/martsearch/internal/domain"
)

// Deps are the side-effect dependencies handed to strategy factories. Strategies
// reach shared state only through these.
type Deps struct {
	Logger *zap.Logger
	// HasDataset reports whether a dataset with the name is configured.
	HasDataset func(name string) bool
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// SortFactory builds a primary strategy from dataset config and options.
type SortFactory func(cfg Config, opts map[string]string, deps Deps) (SortStrategy, error)

// SecondaryFactory builds a secondary strategy from dataset config and options.
type SecondaryFactory func(cfg Config, opts map[string]string, deps Deps) (SecondarySortStrategy, error)

// Strategies is a name to factory registry.
type Strategies struct {
	sorts       map[string]SortFactory
	secondaries map[string]SecondaryFactory
}

// NewStrategies returns a registry holding the built-in strategies.
func NewStrategies() *Strategies {
	s := &Strategies{
		sorts:       make(map[string]SortFactory),
		secondaries: make(map[string]SecondaryFactory),
	}
	s.RegisterSort("group_by", newGroupBy)
	s.RegisterSecondary("crossref", newCrossRef)
	return s
}

// RegisterSort adds or replaces a primary strategy factory.
func (s *Strategies) RegisterSort(name string, f SortFactory) { s.sorts[name] = f }

// RegisterSecondary adds or replaces a secondary strategy factory.
func (s *Strategies) RegisterSecondary(name string, f SecondaryFactory) { s.secondaries[name] = f }

// Names returns registered primary and secondary strategy names.
func (s *Strategies) Names() (sorts, secondaries []string) {
	for n := range s.sorts {
		sorts = append(sorts, n)
	}
	for n := range s.secondaries {
		secondaries = append(secondaries, n)
	}
	sort.Strings(sorts)
	sort.Strings(secondaries)
	return sorts, secondaries
}

// Build creates datasets in configuration order. References to unknown data sources
// or strategies fail with domain.ErrInvalidConfig.
func Build(cfgs []config.DatasetConfig, sources datasource.Registry, strategies *Strategies, deps Deps) ([]*Dataset, error) {
	if strategies == nil {
		strategies = NewStrategies()
	}
	names := make(map[string]bool, len(cfgs))
	for _, c := range cfgs {
		names[c.Name] = true
	}
	if deps.HasDataset == nil {
		deps.HasDataset = func(name string) bool { return names[name] }
	}

	out := make([]*Dataset, 0, len(cfgs))
	for _, c := range cfgs {
		src, ok := sources.Get(c.DataSource)
		if !ok {
			return nil, fmt.Errorf("dataset %q references unregistered datasource %q: %w", c.Name, c.DataSource, domain.ErrInvalidConfig)
		}

		cfg := Config{
			Name:               c.Name,
			DataSource:         c.DataSource,
			JoinedIndexField:   c.JoinedIndexField,
			JoinedAttribute:    c.JoinedAttribute,
			JoinedFilter:       c.JoinedFilter,
			Attributes:         c.Attributes,
			RequiredAttributes: c.RequiredAttributes,
		}

		var opts []Option
		if datasource.EnforcesRequired(src) {
			opts = append(opts, WithEnforcedRequired())
		}
		if c.Sort != nil {
			f, ok := strategies.sorts[c.Sort.Name]
			if !ok {
				return nil, fmt.Errorf("dataset %q: unknown sort strategy %q: %w", c.Name, c.Sort.Name, domain.ErrInvalidConfig)
			}
			s, err := f(cfg, c.Sort.Options, deps)
			if err != nil {
				return nil, fmt.Errorf("dataset %q: %v: %w", c.Name, err, domain.ErrInvalidConfig)
			}
			opts = append(opts, WithSort(s))
		}
		if c.SecondarySort != nil {
			f, ok := strategies.secondaries[c.SecondarySort.Name]
			if !ok {
				return nil, fmt.Errorf("dataset %q: unknown secondary sort strategy %q: %w", c.Name, c.SecondarySort.Name, domain.ErrInvalidConfig)
			}
			s, err := f(cfg, c.SecondarySort.Options, deps)
			if err != nil {
				return nil, fmt.Errorf("dataset %q: %v: %w", c.Name, err, domain.ErrInvalidConfig)
			}
			opts = append(opts, WithSecondarySort(s))
		}

		out = append(out, New(cfg, src, opts...))
	}
	return out, nil
}
