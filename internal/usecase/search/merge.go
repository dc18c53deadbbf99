package search

import (
	"github.com/kailas-cloud/martsearch/internal/dataset"
	"github.com/kailas-cloud/martsearch/internal/domain"
)

// mergeDirect stores results keyed by primary key straight into their records.
func mergeDirect(agg domain.Aggregate, keys []string, name string, results dataset.Results) {
	for _, key := range keys {
		p, ok := results[key]
		if !ok {
			continue
		}
		agg[key].SetPayload(name, p)
	}
}

// mergeIndirect resolves each joined value back to a primary key through the
// records' values for field. When several records share a value the first in
// key order owns it. Values matching no record are dropped.
func mergeIndirect(agg domain.Aggregate, keys []string, field, name string, mode dataset.MergeMode, results dataset.Results) {
	owner := make(map[string]string)
	for _, key := range keys {
		for _, v := range agg[key].Index.Values(field) {
			if _, taken := owner[v]; !taken {
				owner[v] = key
			}
		}
	}

	// Walk records and their field values in order so list merges are deterministic.
	for _, key := range keys {
		rec := agg[key]
		done := make(map[string]bool)
		for _, v := range rec.Index.Values(field) {
			if owner[v] != key || done[v] {
				continue
			}
			done[v] = true
			p, ok := results[v]
			if !ok {
				continue
			}
			existing, had := rec.Payload(name)
			rec.SetPayload(name, dataset.Merge(mode, existing, had, p))
		}
	}
}
