package dataset

import (
	"context"

	"github.com/kailas-cloud/martsearch/internal/domain"
)

// MergeMode selects how a dataset's payload combines with an existing one for the
// same record in indirect join mode.
type MergeMode int

const (
	// MergeList appends rows, preserving source order.
	MergeList MergeMode = iota
	// MergeSingle replaces the existing payload.
	MergeSingle
	// MergeAccumulate shallow-merges keyed payloads; later keys win.
	MergeAccumulate
)

func (m MergeMode) String() string {
	switch m {
	case MergeSingle:
		return "single"
	case MergeAccumulate:
		return "accumulate"
	default:
		return "list"
	}
}

// SortStrategy reshapes raw rows into payloads keyed by joined attribute value.
type SortStrategy interface {
	Sort(rows []domain.Row) Results
	Mode() MergeMode
}

// SecondarySortStrategy runs once over the whole aggregate after every dataset has
// merged. It may read any record and any dataset's payload, but only the records
// listed in fresh are its to rewrite: the rest were served from cache and have
// already been through it. Edits to those are discarded.
type SecondarySortStrategy interface {
	SecondarySort(ctx context.Context, dataset string, agg domain.Aggregate, fresh []string) error
}

// DefaultSort groups rows by one attribute, appending duplicates in order.
// Rows without a value for the attribute are dropped.
type DefaultSort struct {
	Attribute string
}

// Sort implements SortStrategy.
func (s DefaultSort) Sort(rows []domain.Row) Results {
	out := make(Results)
	for _, r := range rows {
		key := r[s.Attribute]
		if key == "" {
			continue
		}
		p := out[key]
		p.Rows = append(p.Rows, r)
		out[key] = p
	}
	return out
}

// Mode implements SortStrategy.
func (DefaultSort) Mode() MergeMode { return MergeList }

// Merge combines an incoming payload into an existing one according to mode.
func Merge(mode MergeMode, existing domain.Payload, ok bool, incoming domain.Payload) domain.Payload {
	if !ok {
		return incoming
	}
	switch mode {
	case MergeSingle:
		return incoming
	case MergeAccumulate:
		out := domain.Payload{
			Rows:  append(append([]domain.Row(nil), existing.Rows...), incoming.Rows...),
			Keyed: make(map[string][]domain.Row, len(existing.Keyed)+len(incoming.Keyed)),
		}
		for k, v := range existing.Keyed {
			out.Keyed[k] = v
		}
		for k, v := range incoming.Keyed {
			out.Keyed[k] = v
		}
		if len(out.Rows) == 0 {
			out.Rows = nil
		}
		return out
	default:
		return domain.Payload{
			Rows:  append(append([]domain.Row(nil), existing.Rows...), incoming.Rows...),
			Keyed: existing.Keyed,
		}
	}
}
