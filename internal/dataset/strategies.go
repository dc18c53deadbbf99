package dataset

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/martsearch/internal/domain"
)

// GroupBy keys each joined value's rows by a secondary attribute.
type GroupBy struct {
	JoinAttribute string
	Attribute     string
	MergeMode     MergeMode
}

func newGroupBy(cfg Config, opts map[string]string, _ Deps) (SortStrategy, error) {
	attr := opts["attribute"]
	if attr == "" {
		return nil, fmt.Errorf("group_by: option attribute is required")
	}
	mode := MergeAccumulate
	switch opts["mode"] {
	case "", "accumulate":
	case "single":
		mode = MergeSingle
	default:
		return nil, fmt.Errorf("group_by: mode must be \"single\" or \"accumulate\", got %q", opts["mode"])
	}
	return GroupBy{JoinAttribute: cfg.JoinedAttribute, Attribute: attr, MergeMode: mode}, nil
}

// Sort implements SortStrategy.
func (g GroupBy) Sort(rows []domain.Row) Results {
	out := make(Results)
	for _, r := range rows {
		join, key := r[g.JoinAttribute], r[g.Attribute]
		if join == "" || key == "" {
			continue
		}
		p := out[join]
		if p.Keyed == nil {
			p.Keyed = make(map[string][]domain.Row)
		}
		p.Keyed[key] = append(p.Keyed[key], r)
		out[join] = p
	}
	return out
}

// Mode implements SortStrategy.
func (g GroupBy) Mode() MergeMode { return g.MergeMode }

// CrossRef annotates this dataset's rows with the number of rows in another
// dataset's payload of the same record sharing an attribute value.
// The count is written under "<target>_count".
type CrossRef struct {
	Target    string
	Attribute string
	logger    *zap.Logger
}

func newCrossRef(cfg Config, opts map[string]string, deps Deps) (SecondarySortStrategy, error) {
	target, attr := opts["dataset"], opts["attribute"]
	if target == "" || attr == "" {
		return nil, fmt.Errorf("crossref: options dataset and attribute are required")
	}
	if target == cfg.Name {
		return nil, fmt.Errorf("crossref: dataset %q cannot reference itself", target)
	}
	if deps.HasDataset != nil && !deps.HasDataset(target) {
		return nil, fmt.Errorf("crossref: unknown dataset %q", target)
	}
	return &CrossRef{Target: target, Attribute: attr, logger: deps.logger()}, nil
}

// SecondarySort implements SecondarySortStrategy.
func (c *CrossRef) SecondarySort(ctx context.Context, dataset string, agg domain.Aggregate, fresh []string) error {
	field := c.Target + "_count"
	annotated := 0
	for _, key := range fresh {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, ok := agg[key]
		if !ok {
			continue
		}
		own, ok := rec.Payload(dataset)
		if !ok {
			continue
		}
		counts := make(map[string]int)
		if other, ok := rec.Payload(c.Target); ok {
			forEachRow(other, func(r domain.Row) {
				if v := r[c.Attribute]; v != "" {
					counts[v]++
				}
			})
		}
		forEachRow(own, func(r domain.Row) {
			r[field] = strconv.Itoa(counts[r[c.Attribute]])
			annotated++
		})
	}
	c.logger.Debug("crossref applied",
		zap.String("dataset", dataset),
		zap.String("target", c.Target),
		zap.Int("rows", annotated),
	)
	return nil
}

func forEachRow(p domain.Payload, fn func(domain.Row)) {
	for _, r := range p.Rows {
		fn(r)
	}
	for _, rows := range p.Keyed {
		for _, r := range rows {
			fn(r)
		}
	}
}
