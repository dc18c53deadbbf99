// Package filesystem serves rows from files matched under a root directory.
package filesystem

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/martsearch/internal/domain"
)

// Row attributes set for every matched file.
const (
	AttrPath     = "path"
	AttrFilename = "filename"
	AttrDir      = "dir"
)

// Source matches query terms against a glob pattern containing a {term} placeholder,
// e.g. "{term}/*.jpg". Each matched file becomes one row.
type Source struct {
	root    string
	pattern string
}

// New creates a filesystem source.
func New(root, pattern string) (*Source, error) {
	if root == "" {
		return nil, fmt.Errorf("filesystem source: root is required: %w", domain.ErrInvalidConfig)
	}
	if !strings.Contains(pattern, "{term}") {
		return nil, fmt.Errorf("filesystem source: pattern %q has no {term} placeholder: %w", pattern, domain.ErrInvalidConfig)
	}
	if _, err := filepath.Match(strings.ReplaceAll(pattern, "{term}", "x"), ""); err != nil {
		return nil, fmt.Errorf("filesystem source: bad pattern %q: %w", pattern, domain.ErrInvalidConfig)
	}
	return &Source{root: root, pattern: pattern}, nil
}

// Search globs every filter value. Rows carry the filter name set to the matched
// term plus path, filename and dir; files repeated across terms are returned once.
func (s *Source) Search(ctx context.Context, q domain.Query) ([]domain.Row, error) {
	var rows []domain.Row
	seen := make(map[string]bool)

	for filter, terms := range q.Filters {
		for _, term := range terms {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("filesystem search: %v: %w", err, domain.ErrDataSourceTimeout)
			}
			if !safeTerm(term) {
				continue
			}

			matches, err := filepath.Glob(filepath.Join(s.root, strings.ReplaceAll(s.pattern, "{term}", term)))
			if err != nil {
				return nil, fmt.Errorf("filesystem glob %q: %v: %w", term, err, domain.ErrDataSource)
			}
			for _, m := range matches {
				rel, err := filepath.Rel(s.root, m)
				if err != nil || seen[filter+"\x00"+rel] {
					continue
				}
				seen[filter+"\x00"+rel] = true

				row := domain.Row{
					filter:       term,
					AttrPath:     filepath.ToSlash(rel),
					AttrFilename: filepath.Base(m),
					AttrDir:      filepath.ToSlash(filepath.Dir(rel)),
				}
				if row.HasAll(q.RequiredAttributes) {
					rows = append(rows, row)
				}
			}
		}
	}
	return rows, nil
}

// safeTerm rejects terms that could escape the root or widen the glob.
func safeTerm(term string) bool {
	if term == "" || term == "." || term == ".." {
		return false
	}
	return !strings.ContainsAny(term, `/\*?[]`)
}
