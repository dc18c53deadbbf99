package martsearch

import (
	"time"

	"github.com/kailas-cloud/martsearch/internal/dataset"
	"github.com/kailas-cloud/martsearch/internal/domain"
	searchuc "github.com/kailas-cloud/martsearch/internal/usecase/search"
)

type (
	// Pagination places a result page within the full index result set.
	Pagination = domain.Pagination
	// Payload is one dataset's rows for a record.
	Payload = domain.Payload
	// Row is one data source row: attribute name to value.
	Row = domain.Row
	// SearchError describes one index or dataset failure.
	SearchError = domain.SearchError
	// ErrorKind classifies a SearchError.
	ErrorKind = domain.ErrorKind
)

// Result is the outcome of one search.
type Result struct {
	Query      string
	Pagination Pagination
	Records    []Record // in index order
	Errors     []SearchError
}

// Record is one primary key with its index document and per-dataset payloads.
type Record struct {
	Key          string
	Index        map[string][]string
	Datasets     map[string]Payload
	Highlighting map[string][]string
	CachedAt     time.Time
}

// Dataset describes a registered dataset.
type Dataset struct {
	Name               string
	DataSource         string
	JoinedIndexField   string
	JoinedAttribute    string
	Attributes         []string
	RequiredAttributes []string
}

func resultFromInternal(r *searchuc.Result) *Result {
	out := &Result{
		Query:      r.Query,
		Pagination: r.Pagination,
		Records:    make([]Record, 0, len(r.Keys)),
		Errors:     r.Errors(),
	}
	for _, key := range r.Keys {
		rec, ok := r.Aggregate[key]
		if !ok {
			continue
		}
		out.Records = append(out.Records, Record{
			Key:          key,
			Index:        rec.Index,
			Datasets:     rec.Datasets,
			Highlighting: r.Highlighting[key],
			CachedAt:     rec.CachedAt,
		})
	}
	return out
}

func datasetFromInternal(c dataset.Config) Dataset {
	return Dataset{
		Name:               c.Name,
		DataSource:         c.DataSource,
		JoinedIndexField:   c.JoinedIndexField,
		JoinedAttribute:    c.JoinedAttribute,
		Attributes:         c.Attributes,
		RequiredAttributes: c.RequiredAttributes,
	}
}
