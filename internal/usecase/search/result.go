package search

import (
	"sort"

	"github.com/kailas-cloud/martsearch/internal/domain"
)

// Result is the outcome of one search call.
type Result struct {
	Query        string                         `json:"query"`
	Keys         []string                       `json:"keys"`
	Pagination   domain.Pagination              `json:"pagination"`
	Aggregate    domain.Aggregate               `json:"results"`
	Highlighting map[string]map[string][]string `json:"highlighting,omitempty"`

	IndexError    *domain.SearchError           `json:"-"`
	DatasetErrors map[string]domain.SearchError `json:"-"`

	Stats Stats `json:"-"`
}

// Stats describes how a result was assembled.
type Stats struct {
	IndexCached    bool
	CachedRecords  int
	FetchedRecords int
	Datasets       int
}

// Errors lists the index error, if any, followed by dataset errors in name order.
func (r *Result) Errors() []domain.SearchError {
	out := make([]domain.SearchError, 0, len(r.DatasetErrors)+1)
	if r.IndexError != nil {
		out = append(out, *r.IndexError)
	}
	names := make([]string, 0, len(r.DatasetErrors))
	for n := range r.DatasetErrors {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		out = append(out, r.DatasetErrors[n])
	}
	return out
}

// Records returns the records of the page in key order.
func (r *Result) Records() []*domain.Record {
	out := make([]*domain.Record, 0, len(r.Keys))
	for _, k := range r.Keys {
		if rec, ok := r.Aggregate[k]; ok {
			out = append(out, rec)
		}
	}
	return out
}

func (r *Result) status() string {
	switch {
	case r.IndexError != nil:
		return "index_error"
	case len(r.DatasetErrors) > 0:
		return "partial"
	default:
		return "ok"
	}
}
