package search

import (
	"context"
	"time"

	"github.com/kailas-cloud/martsearch/internal/dataset"
	"github.com/kailas-cloud/martsearch/internal/domain"
)

// Index is the primary search index (consumer interface, ISP).
type Index interface {
	Search(ctx context.Context, query string, page int) (domain.IndexPage, error)
	QuickSearch(ctx context.Context, query string, page int) ([]domain.Document, error)
	Count(ctx context.Context, query string) (int, error)
	PrimaryField() string
	PageSize() int
}

// Cache stores serialized index pages and record payloads.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Dataset is one registered dataset taking part in the fan-out.
type Dataset interface {
	Name() string
	Config() dataset.Config
	JoinedIndexField() string
	MergeMode() dataset.MergeMode
	SecondarySort() dataset.SecondarySortStrategy
	Search(ctx context.Context, terms []string) (dataset.Results, error)
}
