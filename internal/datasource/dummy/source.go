// Package dummy serves a fixed set of rows, for tests and local setups.
package dummy

import (
	"context"
	"slices"

	"github.com/kailas-cloud/martsearch/internal/domain"
)

// Source returns its static rows that match every filter.
type Source struct {
	rows []domain.Row
}

// New creates a dummy source over a copy of rows.
func New(rows []map[string]string) *Source {
	s := &Source{rows: make([]domain.Row, 0, len(rows))}
	for _, r := range rows {
		row := make(domain.Row, len(r))
		for k, v := range r {
			row[k] = v
		}
		s.rows = append(s.rows, row)
	}
	return s
}

// Search keeps rows whose value for each filter is one of the filter's values.
// Returned rows are projected onto the requested attributes when any are given.
func (s *Source) Search(ctx context.Context, q domain.Query) ([]domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []domain.Row
	for _, r := range s.rows {
		if !matches(r, q.Filters) || !r.HasAll(q.RequiredAttributes) {
			continue
		}
		out = append(out, project(r, q.Attributes))
	}
	return out, nil
}

func matches(r domain.Row, filters map[string][]string) bool {
	for name, values := range filters {
		if !slices.Contains(values, r[name]) {
			return false
		}
	}
	return true
}

func project(r domain.Row, attrs []string) domain.Row {
	out := make(domain.Row, len(r))
	if len(attrs) == 0 {
		for k, v := range r {
			out[k] = v
		}
		return out
	}
	for _, a := range attrs {
		if v, ok := r[a]; ok {
			out[a] = v
		}
	}
	return out
}
