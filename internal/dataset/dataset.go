// Package dataset binds a data source to its join configuration and sort strategies.
package dataset

import (
	"context"
	"fmt"
	"slices"

	"github.com/kailas-cloud/martsearch/internal/domain"
)

// source is the data source a dataset queries (consumer interface, ISP).
type source interface {
	Search(ctx context.Context, q domain.Query) ([]domain.Row, error)
}

// Config is the immutable per-dataset configuration.
type Config struct {
	Name               string   `json:"name"`
	DataSource         string   `json:"datasource"`
	JoinedIndexField   string   `json:"joined_index_field"`
	JoinedAttribute    string   `json:"joined_attribute"`
	JoinedFilter       string   `json:"joined_filter"`
	Attributes         []string `json:"attributes"`
	RequiredAttributes []string `json:"required_attributes,omitempty"`
	HasCustomSort      bool     `json:"has_custom_sort"`
	HasSecondarySort   bool     `json:"has_custom_secondary_sort"`
}

// Results maps a joined attribute value to the payload for that value.
type Results map[string]domain.Payload

// Dataset queries one data source and reshapes its rows with a sort strategy.
type Dataset struct {
	cfg              Config
	source           source
	sort             SortStrategy
	secondary        SecondarySortStrategy
	enforcesRequired bool
}

// Option configures a Dataset.
type Option func(*Dataset)

// WithSort sets a custom primary sort strategy.
func WithSort(s SortStrategy) Option {
	return func(d *Dataset) {
		d.sort = s
		d.cfg.HasCustomSort = true
	}
}

// WithSecondarySort sets a cross-dataset strategy run after the fan-out.
func WithSecondarySort(s SecondarySortStrategy) Option {
	return func(d *Dataset) {
		d.secondary = s
		d.cfg.HasSecondarySort = true
	}
}

// WithEnforcedRequired marks the source as already dropping rows that miss required attributes.
func WithEnforcedRequired() Option {
	return func(d *Dataset) { d.enforcesRequired = true }
}

// New creates a dataset. Without WithSort it groups rows by the joined attribute.
func New(cfg Config, src source, opts ...Option) *Dataset {
	if cfg.JoinedFilter == "" {
		cfg.JoinedFilter = cfg.JoinedAttribute
	}
	if cfg.JoinedAttribute != "" && !slices.Contains(cfg.Attributes, cfg.JoinedAttribute) {
		cfg.Attributes = append([]string{cfg.JoinedAttribute}, cfg.Attributes...)
	}
	d := &Dataset{cfg: cfg, source: src}
	for _, opt := range opts {
		opt(d)
	}
	if d.sort == nil {
		d.sort = DefaultSort{Attribute: cfg.JoinedAttribute}
	}
	return d
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.cfg.Name }

// Config returns a copy of the dataset configuration.
func (d *Dataset) Config() Config {
	c := d.cfg
	c.Attributes = slices.Clone(d.cfg.Attributes)
	c.RequiredAttributes = slices.Clone(d.cfg.RequiredAttributes)
	return c
}

// JoinedIndexField returns the index field whose values are sent as query terms.
func (d *Dataset) JoinedIndexField() string { return d.cfg.JoinedIndexField }

// MergeMode returns how results merge into records in indirect mode.
func (d *Dataset) MergeMode() MergeMode { return d.sort.Mode() }

// SecondarySort returns the cross-dataset strategy, or nil.
func (d *Dataset) SecondarySort() SecondarySortStrategy { return d.secondary }

// Search queries the data source with terms as the joined filter and reshapes the
// rows. An empty term list performs no query.
func (d *Dataset) Search(ctx context.Context, terms []string) (Results, error) {
	if len(terms) == 0 {
		return Results{}, nil
	}

	rows, err := d.source.Search(ctx, domain.Query{
		Filters:            map[string][]string{d.cfg.JoinedFilter: terms},
		Attributes:         d.cfg.Attributes,
		RequiredAttributes: d.cfg.RequiredAttributes,
	})
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", d.cfg.Name, err)
	}

	if !d.enforcesRequired && len(d.cfg.RequiredAttributes) > 0 {
		kept := rows[:0:0]
		for _, r := range rows {
			if r.HasAll(d.cfg.RequiredAttributes) {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	return d.sort.Sort(rows), nil
}
