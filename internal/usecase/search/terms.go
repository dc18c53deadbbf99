package search

import "github.com/kailas-cloud/martsearch/internal/domain"

// groupTerms collects, per index field, every value of the given records. Values
// are deduplicated per field across the whole batch and keep first-seen order, so
// one call per dataset serves all records needing a refresh.
func groupTerms(agg domain.Aggregate, keys []string) map[string][]string {
	terms := make(map[string][]string)
	seen := make(map[string]map[string]bool)

	for _, key := range keys {
		rec, ok := agg[key]
		if !ok {
			continue
		}
		for field, values := range rec.Index {
			fs := seen[field]
			if fs == nil {
				fs = make(map[string]bool)
				seen[field] = fs
			}
			for _, v := range values {
				if v == "" || fs[v] {
					continue
				}
				fs[v] = true
				terms[field] = append(terms[field], v)
			}
		}
	}
	return terms
}
