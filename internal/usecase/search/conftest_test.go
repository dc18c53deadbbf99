package search

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kailas-cloud/martsearch/internal/cache"
	"github.com/kailas-cloud/martsearch/internal/dataset"
	"github.com/kailas-cloud/martsearch/internal/domain"
)

// --- Mocks ---

type fakeIndex struct {
	mu       sync.Mutex
	docs     []domain.Document
	primary  string
	pageSize int
	err      error
	pages    []int
}

func newFakeIndex(docs ...domain.Document) *fakeIndex {
	return &fakeIndex{docs: docs, primary: "mgi_accession_id", pageSize: 10}
}

func (f *fakeIndex) Search(_ context.Context, _ string, page int) (domain.IndexPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = append(f.pages, page)
	if f.err != nil {
		return domain.IndexPage{}, f.err
	}

	out := domain.IndexPage{Documents: make(map[string]domain.Document), Total: len(f.docs)}
	start := domain.StartOffset(page, f.pageSize)
	for i := start; i < len(f.docs) && i < start+f.pageSize; i++ {
		key := f.docs[i].First(f.primary)
		out.Keys = append(out.Keys, key)
		out.Documents[key] = f.docs[i].Clone()
	}
	return out, nil
}

func (f *fakeIndex) QuickSearch(_ context.Context, _ string, _ int) ([]domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func (f *fakeIndex) Count(_ context.Context, _ string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(f.docs), nil
}

func (f *fakeIndex) PrimaryField() string { return f.primary }
func (f *fakeIndex) PageSize() int        { return f.pageSize }

func (f *fakeIndex) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pages)
}

// countingSource is a data source that counts calls and can fail, stall or panic.
type countingSource struct {
	rows     []domain.Row
	err      error
	stall    bool // block, ignoring the context
	panicMsg string
	calls    atomic.Int32
	canceled atomic.Bool
	terms    atomic.Value // []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (s *countingSource) Search(ctx context.Context, q domain.Query) ([]domain.Row, error) {
	s.calls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	for _, v := range q.Filters {
		s.terms.Store(v)
	}
	if ctx.Err() != nil {
		s.canceled.Store(true)
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.stall {
		select {}
	}
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Row, 0, len(s.rows))
	for _, r := range s.rows {
		if matchesFilters(r, q.Filters) {
			cp := make(domain.Row, len(r))
			for k, v := range r {
				cp[k] = v
			}
			out = append(out, cp)
		}
	}
	return out, nil
}

func matchesFilters(r domain.Row, filters map[string][]string) bool {
	for name, values := range filters {
		ok := false
		for _, v := range values {
			if r[name] == v {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// recordingSecondary records the keys it saw on each run and stamps every
// row of its own dataset with a pass counter.
type recordingSecondary struct {
	mu    sync.Mutex
	runs  [][]string
	fresh [][]string
	err   error
}

func (r *recordingSecondary) SecondarySort(_ context.Context, name string, agg domain.Aggregate, fresh []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(agg))
	for k, rec := range agg {
		keys = append(keys, k)
		if p, ok := rec.Payload(name); ok {
			for _, row := range p.Rows {
				n, _ := strconv.Atoi(row["passes"])
				row["passes"] = strconv.Itoa(n + 1)
			}
		}
	}
	r.runs = append(r.runs, keys)
	r.fresh = append(r.fresh, append([]string(nil), fresh...))
	return r.err
}

// failingCache fails every operation.
type failingCache struct{}

var errCacheDown = errors.New("cache down")

func (failingCache) Get(context.Context, string) ([]byte, error) { return nil, errCacheDown }
func (failingCache) Put(context.Context, string, []byte, time.Duration) error {
	return errCacheDown
}
func (failingCache) Delete(context.Context, string) error { return errCacheDown }
func (failingCache) Clear(context.Context) error          { return errCacheDown }

// --- Fixtures ---

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func geneDocs() []domain.Document {
	return []domain.Document{
		{"mgi_accession_id": {"MGI:105369"}, "marker_symbol": {"Cbx1", "Cbx1b"}},
		{"mgi_accession_id": {"MGI:88039"}, "marker_symbol": {"Apc"}},
	}
}

// directDataset joins on the primary key.
func directDataset(name string, src *countingSource) *dataset.Dataset {
	return dataset.New(dataset.Config{
		Name:             name,
		DataSource:       name,
		JoinedIndexField: "mgi_accession_id",
		JoinedAttribute:  "mgi_id",
		Attributes:       []string{"value"},
	}, src)
}

// symbolDataset joins on marker_symbol.
func symbolDataset(name string, src *countingSource, opts ...dataset.Option) *dataset.Dataset {
	return dataset.New(dataset.Config{
		Name:             name,
		DataSource:       name,
		JoinedIndexField: "marker_symbol",
		JoinedAttribute:  "marker_symbol",
		Attributes:       []string{"value"},
	}, src, opts...)
}

func newService(idx Index, c Cache, clk *clock, datasets ...Dataset) *Service {
	if c == nil {
		c = cache.NewMemory().WithClock(clk.Now)
	}
	return New(idx, c, datasets, nil).WithClock(clk.Now).WithDatasetTimeout(200 * time.Millisecond)
}
