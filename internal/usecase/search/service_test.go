package search

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/martsearch/internal/cache"
	"github.com/kailas-cloud/martsearch/internal/dataset"
	"github.com/kailas-cloud/martsearch/internal/domain"
	logpkg "github.com/kailas-cloud/martsearch/internal/logger"
)

func TestSearch_IsIdempotentAndServedFromCache(t *testing.T) {
	clk := newClock()
	idx := newFakeIndex(geneDocs()...)
	direct := &countingSource{rows: []domain.Row{
		{"mgi_id": "MGI:105369", "value": "1"},
		{"mgi_id": "MGI:88039", "value": "2"},
	}}
	symbols := &countingSource{rows: []domain.Row{{"marker_symbol": "Cbx1", "value": "42"}}}
	svc := newService(idx, nil, clk, directDataset("direct", direct), symbolDataset("symbols", symbols))

	first, err := svc.Search(context.Background(), "Cbx1 OR Apc", 1, true)
	if err != nil {
		t.Fatalf("first search: %v", err)
	}
	second, err := svc.Search(context.Background(), "Cbx1 OR Apc", 1, true)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}

	if !reflect.DeepEqual(first.Keys, second.Keys) {
		t.Errorf("key order differs: %v vs %v", first.Keys, second.Keys)
	}
	for _, key := range first.Keys {
		a, b := first.Aggregate[key], second.Aggregate[key]
		if !reflect.DeepEqual(a.Index, b.Index) || !reflect.DeepEqual(a.Datasets, b.Datasets) {
			t.Errorf("record %s differs:\n%+v\n%+v", key, a, b)
		}
		if !a.CachedAt.Equal(b.CachedAt) {
			t.Errorf("record %s cached_at differs: %s vs %s", key, a.CachedAt, b.CachedAt)
		}
	}

	if idx.calls() != 1 {
		t.Errorf("expected 1 index call, got %d", idx.calls())
	}
	if direct.calls.Load() != 1 || symbols.calls.Load() != 1 {
		t.Errorf("expected 1 call per data source, got %d and %d", direct.calls.Load(), symbols.calls.Load())
	}
	if !second.Stats.IndexCached || second.Stats.CachedRecords != 2 || second.Stats.FetchedRecords != 0 {
		t.Errorf("unexpected stats on second call: %+v", second.Stats)
	}
}

func TestSearch_PartialFailureIsolation(t *testing.T) {
	clk := newClock()
	idx := newFakeIndex(geneDocs()...)
	a := &countingSource{rows: []domain.Row{{"mgi_id": "MGI:105369", "value": "a"}}}
	b := &countingSource{err: domain.ErrDataSourceTimeout}
	c := &countingSource{rows: []domain.Row{{"marker_symbol": "Apc", "value": "c"}}}
	svc := newService(idx, nil, clk,
		directDataset("A", a), directDataset("B", b), symbolDataset("C", c))

	res, err := svc.Search(context.Background(), "q", 1, true)
	if err != nil {
		t.Fatalf("dataset failures must not fail the call: %v", err)
	}

	if _, ok := res.Aggregate["MGI:105369"].Payload("A"); !ok {
		t.Error("dataset A data missing")
	}
	if _, ok := res.Aggregate["MGI:88039"].Payload("C"); !ok {
		t.Error("dataset C data missing")
	}
	for _, rec := range res.Aggregate {
		if _, ok := rec.Payload("B"); ok {
			t.Error("failed dataset B must not contribute a payload")
		}
	}

	if len(res.DatasetErrors) != 1 {
		t.Fatalf("expected exactly one dataset error, got %v", res.DatasetErrors)
	}
	berr, ok := res.DatasetErrors["B"]
	if !ok || berr.Kind != domain.KindDataSourceTimeout || berr.Dataset != "B" {
		t.Errorf("unexpected error for B: %+v", berr)
	}
	if res.IndexError != nil {
		t.Errorf("unexpected index error: %v", res.IndexError)
	}
	if errs := res.Errors(); len(errs) != 1 || !errors.Is(errs[0], domain.ErrDataSourceTimeout) {
		t.Errorf("Errors() = %v", errs)
	}
}

func TestSearch_StalledDatasetTimesOutAlone(t *testing.T) {
	clk := newClock()
	idx := newFakeIndex(geneDocs()...)
	stalled := &countingSource{stall: true}
	ok := &countingSource{rows: []domain.Row{{"mgi_id": "MGI:88039", "value": "x"}}}
	svc := newService(idx, nil, clk, directDataset("stalled", stalled), directDataset("ok", ok)).
		WithDatasetTimeout(50 * time.Millisecond)

	start := time.Now()
	res, err := svc.Search(context.Background(), "q", 1, true)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("stalled dataset blocked the call for %s", elapsed)
	}
	if res.DatasetErrors["stalled"].Kind != domain.KindDataSourceTimeout {
		t.Errorf("expected timeout for stalled dataset, got %+v", res.DatasetErrors)
	}
	if _, found := res.Aggregate["MGI:88039"].Payload("ok"); !found {
		t.Error("healthy dataset must still merge")
	}
}

func TestSearch_PanickingDatasetIsRecorded(t *testing.T) {
	clk := newClock()
	idx := newFakeIndex(geneDocs()...)
	boom := &countingSource{panicMsg: "nil map"}
	ok := &countingSource{rows: []domain.Row{{"mgi_id": "MGI:88039", "value": "x"}}}
	svc := newService(idx, nil, clk, directDataset("boom", boom), directDataset("ok", ok))

	res, err := svc.Search(context.Background(), "q", 1, true)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.DatasetErrors["boom"].Kind != domain.KindDataSource {
		t.Errorf("expected datasource error for panic, got %+v", res.DatasetErrors)
	}
	if _, found := res.Aggregate["MGI:88039"].Payload("ok"); !found {
		t.Error("healthy dataset must still merge")
	}
}

func TestSearch_DirectJoin(t *testing.T) {
	clk := newClock()
	idx := newFakeIndex(geneDocs()...)
	src := &countingSource{rows: []domain.Row{
		{"mgi_id": "MGI:105369", "value": "1"},
		{"mgi_id": "MGI:88039", "value": "2"},
		{"mgi_id": "MGI:999", "value": "not on page"},
	}}
	svc := newService(idx, nil, clk, directDataset("direct", src))

	res, err := svc.Search(context.Background(), "q", 1, true)
	if err != nil {
		t.Fatal(err)
	}

	for key, want := range map[string]string{"MGI:105369": "1", "MGI:88039": "2"} {
		p, ok := res.Aggregate[key].Payload("direct")
		if !ok {
			t.Fatalf("no payload for %s", key)
		}
		wantRows := []domain.Row{{"mgi_id": key, "value": want}}
		if !reflect.DeepEqual(p.Rows, wantRows) {
			t.Errorf("%s rows = %v, want %v", key, p.Rows, wantRows)
		}
	}
	if _, ok := res.Aggregate["MGI:999"]; ok {
		t.Error("rows for keys outside the page must not create records")
	}

	got, _ := src.terms.Load().([]string)
	if !reflect.DeepEqual(got, []string{"MGI:105369", "MGI:88039"}) {
		t.Errorf("terms = %v", got)
	}
}

func TestSearch_IndirectJoin(t *testing.T) {
	clk := newClock()
	idx := newFakeIndex(domain.Document{
		"mgi_accession_id": {"K"},
		"marker_symbol":    {"Cbx1", "Cbx1b"},
	})
	src := &countingSource{rows: []domain.Row{
		{"marker_symbol": "Cbx1", "value": "42"},
		{"marker_symbol": "Unrelated", "value": "0"},
	}}
	svc := newService(idx, nil, clk, symbolDataset("symbols", src))

	res, err := svc.Search(context.Background(), "Cbx1", 1, true)
	if err != nil {
		t.Fatal(err)
	}

	p, ok := res.Aggregate["K"].Payload("symbols")
	if !ok {
		t.Fatal("expected payload for K")
	}
	if len(p.Rows) != 1 || p.Rows[0]["value"] != "42" {
		t.Errorf("rows = %v, want the value 42 row only", p.Rows)
	}

	got, _ := src.terms.Load().([]string)
	if !reflect.DeepEqual(got, []string{"Cbx1", "Cbx1b"}) {
		t.Errorf("list field values must fan out as terms, got %v", got)
	}
}

func TestSearch_IndirectJoinAccumulatesAcrossValues(t *testing.T) {
	clk := newClock()
	idx := newFakeIndex(domain.Document{
		"mgi_accession_id": {"K"},
		"marker_symbol":    {"Cbx1", "Cbx1b"},
	})
	src := &countingSource{rows: []domain.Row{
		{"marker_symbol": "Cbx1", "value": "1", "pipeline": "KOMP"},
		{"marker_symbol": "Cbx1b", "value": "2", "pipeline": "EUCOMM"},
	}}
	grouped := symbolDataset("symbols", src, dataset.WithSort(dataset.GroupBy{
		JoinAttribute: "marker_symbol", Attribute: "pipeline", MergeMode: dataset.MergeAccumulate,
	}))
	svc := newService(idx, nil, clk, grouped)

	res, err := svc.Search(context.Background(), "Cbx1", 1, true)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := res.Aggregate["K"].Payload("symbols")
	if len(p.Keyed["KOMP"]) != 1 || len(p.Keyed["EUCOMM"]) != 1 {
		t.Errorf("accumulate mode must merge both keyed maps, got %v", p.Keyed)
	}
}

func TestSearch_Pagination(t *testing.T) {
	clk := newClock()
	docs := make([]domain.Document, 45)
	for i := range docs {
		docs[i] = domain.Document{"mgi_accession_id": {"MGI:" + string(rune('A'+i))}}
	}
	idx := newFakeIndex(docs...)
	svc := newService(idx, nil, clk)

	zero, err := svc.Search(context.Background(), "q", 0, true)
	if err != nil {
		t.Fatal(err)
	}
	one, err := svc.Search(context.Background(), "q", 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(zero.Keys, one.Keys) || zero.Pagination != one.Pagination {
		t.Error("page 0 must behave as page 1")
	}
	if idx.calls() != 1 || idx.pages[0] != 1 {
		t.Errorf("page 0 must be normalized before the index and cache, got pages %v", idx.pages)
	}

	four, err := svc.Search(context.Background(), "q", 4, true)
	if err != nil {
		t.Fatal(err)
	}
	if four.Pagination.StartOffset != 30 || four.Pagination.TotalPages != 5 {
		t.Errorf("page 4 pagination = %+v", four.Pagination)
	}
	if len(four.Keys) != 10 || four.Keys[0] != docs[30].First("mgi_accession_id") {
		t.Errorf("page 4 keys = %v", four.Keys)
	}
}

func TestSearch_CacheTTLIndependence(t *testing.T) {
	clk := newClock()
	idx := newFakeIndex(geneDocs()...)
	src := &countingSource{rows: []domain.Row{{"mgi_id": "MGI:88039", "value": "x"}}}
	svc := newService(idx, nil, clk, directDataset("direct", src)).
		WithTTLs(36*time.Hour, 24*time.Hour)

	if _, err := svc.Search(context.Background(), "q", 1, true); err != nil {
		t.Fatal(err)
	}

	// Past the dataset TTL, within the index TTL.
	clk.Advance(25 * time.Hour)

	res, err := svc.Search(context.Background(), "q", 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if idx.calls() != 1 {
		t.Errorf("index must be served from cache, got %d calls", idx.calls())
	}
	if src.calls.Load() != 2 {
		t.Errorf("dataset fan-out must re-run once, got %d calls", src.calls.Load())
	}
	if !res.Stats.IndexCached || res.Stats.FetchedRecords != 2 {
		t.Errorf("unexpected stats: %+v", res.Stats)
	}
	if !res.Aggregate["MGI:88039"].CachedAt.Equal(clk.Now()) {
		t.Errorf("refreshed record must be re-stamped, got %s", res.Aggregate["MGI:88039"].CachedAt)
	}
}

func TestSearch_RequiredAttributeFiltering(t *testing.T) {
	clk := newClock()
	idx := newFakeIndex(geneDocs()...)
	src := &countingSource{rows: []domain.Row{
		{"mgi_id": "MGI:105369", "value": "kept"},
		{"mgi_id": "MGI:105369"},
		{"mgi_id": "MGI:88039"},
	}}
	ds := dataset.New(dataset.Config{
		Name:               "required",
		JoinedIndexField:   "mgi_accession_id",
		JoinedAttribute:    "mgi_id",
		Attributes:         []string{"value"},
		RequiredAttributes: []string{"value"},
	}, src)
	svc := newService(idx, nil, clk, ds)

	res, err := svc.Search(context.Background(), "q", 1, true)
	if err != nil {
		t.Fatal(err)
	}

	p, _ := res.Aggregate["MGI:105369"].Payload("required")
	if len(p.Rows) != 1 || p.Rows[0]["value"] != "kept" {
		t.Errorf("rows = %v, want only the row carrying value", p.Rows)
	}
	if _, ok := res.Aggregate["MGI:88039"].Payload("required"); ok {
		t.Error("record whose only row misses the required attribute must have no payload")
	}
}

func TestSearch_IndexErrorsAbort(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind domain.ErrorKind
		want     error
	}{
		{"unavailable", domain.ErrIndexUnavailable, domain.KindIndexUnavailable, domain.ErrIndexUnavailable},
		{"rejected", domain.ErrIndexSearch, domain.KindIndexSearch, domain.ErrIndexSearch},
		{"unknown", errors.New("socket closed"), domain.KindIndexUnavailable, domain.ErrIndexUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			idx := newFakeIndex(geneDocs()...)
			idx.err = tc.err
			src := &countingSource{}
			svc := newService(idx, nil, newClock(), directDataset("direct", src))

			res, err := svc.Search(context.Background(), "a:(", 1, true)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if res == nil || res.IndexError == nil || res.IndexError.Kind != tc.wantKind {
				t.Fatalf("expected structured index error, got %+v", res)
			}
			if src.calls.Load() != 0 {
				t.Error("no dataset work after an index failure")
			}
			if len(res.Keys) != 0 {
				t.Errorf("expected empty result, got %v", res.Keys)
			}
		})
	}
}

func TestSearch_CacheFailuresAreMisses(t *testing.T) {
	idx := newFakeIndex(geneDocs()...)
	src := &countingSource{rows: []domain.Row{{"mgi_id": "MGI:88039", "value": "x"}}}
	svc := newService(idx, failingCache{}, newClock(), directDataset("direct", src))

	for i := 0; i < 2; i++ {
		res, err := svc.Search(context.Background(), "q", 1, true)
		if err != nil {
			t.Fatalf("cache failures must not fail the call: %v", err)
		}
		if _, ok := res.Aggregate["MGI:88039"].Payload("direct"); !ok {
			t.Error("expected fresh data despite cache failure")
		}
	}
	if idx.calls() != 2 || src.calls.Load() != 2 {
		t.Errorf("every call should go to the backends, got index=%d source=%d", idx.calls(), src.calls.Load())
	}
}

func TestSearch_UseCacheFalseStillWritesBack(t *testing.T) {
	clk := newClock()
	idx := newFakeIndex(geneDocs()...)
	src := &countingSource{rows: []domain.Row{{"mgi_id": "MGI:88039", "value": "x"}}}
	svc := newService(idx, nil, clk, directDataset("direct", src))

	if _, err := svc.Search(context.Background(), "q", 1, false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Search(context.Background(), "q", 1, false); err != nil {
		t.Fatal(err)
	}
	if idx.calls() != 2 || src.calls.Load() != 2 {
		t.Errorf("useCache=false must bypass reads, got index=%d source=%d", idx.calls(), src.calls.Load())
	}

	res, err := svc.Search(context.Background(), "q", 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if idx.calls() != 2 || src.calls.Load() != 2 {
		t.Error("entries written by uncached calls must serve later cached calls")
	}
	if !res.Stats.IndexCached {
		t.Error("expected index cache hit")
	}
}

func TestSearch_SecondarySortSeesWholeAggregate(t *testing.T) {
	clk := newClock()
	mem := cache.NewMemory().WithClock(clk.Now)
	idx := newFakeIndex(geneDocs()...)
	src := &countingSource{rows: []domain.Row{
		{"mgi_id": "MGI:105369", "value": "1"},
		{"mgi_id": "MGI:88039", "value": "2"},
	}}
	sec := &recordingSecondary{}
	ds := dataset.New(dataset.Config{
		Name: "direct", JoinedIndexField: "mgi_accession_id", JoinedAttribute: "mgi_id",
	}, src, dataset.WithSecondarySort(sec))
	svc := newService(idx, mem, clk, ds)

	if _, err := svc.Search(context.Background(), "q", 1, true); err != nil {
		t.Fatal(err)
	}
	// Expire one record only.
	if err := mem.Delete(context.Background(), DatasetKey("MGI:88039")); err != nil {
		t.Fatal(err)
	}
	mixed, err := svc.Search(context.Background(), "q", 1, true)
	if err != nil {
		t.Fatal(err)
	}
	// Fully cached: no fan-out, no secondary pass.
	if _, err := svc.Search(context.Background(), "q", 1, true); err != nil {
		t.Fatal(err)
	}

	if len(sec.runs) != 2 {
		t.Fatalf("expected 2 secondary runs, got %d", len(sec.runs))
	}
	if len(sec.runs[1]) != 2 {
		t.Errorf("secondary pass must see the whole aggregate, saw %v", sec.runs[1])
	}
	got, _ := src.terms.Load().([]string)
	if !reflect.DeepEqual(got, []string{"MGI:88039"}) {
		t.Errorf("only the expired record should be re-queried, got terms %v", got)
	}
	if !reflect.DeepEqual(sec.fresh[1], []string{"MGI:88039"}) {
		t.Errorf("fresh keys = %v, want only the expired record", sec.fresh[1])
	}
	// Each record went through the secondary pass exactly once, including the
	// one served from cache on the mixed page.
	for _, key := range []string{"MGI:105369", "MGI:88039"} {
		p, ok := mixed.Aggregate[key].Payload("direct")
		if !ok || len(p.Rows) != 1 {
			t.Fatalf("%s: unexpected payload %+v", key, p)
		}
		if passes := p.Rows[0]["passes"]; passes != "1" {
			t.Errorf("%s: secondary applied %s times, want 1", key, passes)
		}
	}
}

func TestSearch_SecondarySortErrorIsRecorded(t *testing.T) {
	idx := newFakeIndex(geneDocs()...)
	src := &countingSource{}
	ds := dataset.New(dataset.Config{
		Name: "direct", JoinedIndexField: "mgi_accession_id", JoinedAttribute: "mgi_id",
	}, src, dataset.WithSecondarySort(&recordingSecondary{err: errors.New("lookup failed")}))
	svc := newService(idx, nil, newClock(), ds)

	res, err := svc.Search(context.Background(), "q", 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.DatasetErrors["direct"].Kind != domain.KindDataSource {
		t.Errorf("expected recorded secondary failure, got %+v", res.DatasetErrors)
	}
}

func TestSearch_WorkerPoolIsBounded(t *testing.T) {
	idx := newFakeIndex(geneDocs()...)
	shared := &countingSource{delay: 20 * time.Millisecond}
	var datasets []Dataset
	for _, name := range []string{"a", "b", "c", "d"} {
		datasets = append(datasets, directDataset(name, shared))
	}
	svc := newService(idx, nil, newClock(), datasets...).WithWorkers(2)

	if _, err := svc.Search(context.Background(), "q", 1, true); err != nil {
		t.Fatal(err)
	}
	if shared.calls.Load() != 4 {
		t.Errorf("expected 4 dataset calls, got %d", shared.calls.Load())
	}
	if peak := shared.maxSeen.Load(); peak > 2 {
		t.Errorf("expected at most 2 concurrent calls, saw %d", peak)
	}
}

func TestSearch_CallerCancellationDoesNotReachDatasets(t *testing.T) {
	idx := newFakeIndex(geneDocs()...)
	src := &countingSource{rows: []domain.Row{{"mgi_id": "MGI:88039", "value": "x"}}}
	svc := newService(idx, nil, newClock(), directDataset("direct", src))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.Search(ctx, "q", 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if src.canceled.Load() {
		t.Error("dataset saw the caller's cancellation")
	}
	if _, ok := res.Aggregate["MGI:88039"].Payload("direct"); !ok {
		t.Error("expected dataset data")
	}
}

func TestClearCacheAndDatasets(t *testing.T) {
	clk := newClock()
	idx := newFakeIndex(geneDocs()...)
	src := &countingSource{}
	svc := newService(idx, nil, clk, directDataset("direct", src), symbolDataset("symbols", src))

	if _, err := svc.Search(context.Background(), "q", 1, true); err != nil {
		t.Fatal(err)
	}
	if err := svc.ClearCache(context.Background()); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if _, err := svc.Search(context.Background(), "q", 1, true); err != nil {
		t.Fatal(err)
	}
	if idx.calls() != 2 {
		t.Errorf("cleared cache must force an index lookup, got %d calls", idx.calls())
	}

	cfgs := svc.Datasets()
	if len(cfgs) != 2 || cfgs[0].Name != "direct" || cfgs[1].Name != "symbols" {
		t.Errorf("Datasets() = %+v", cfgs)
	}

	failing := newService(idx, failingCache{}, clk)
	if err := failing.ClearCache(context.Background()); !errors.Is(err, errCacheDown) {
		t.Errorf("expected cache error, got %v", err)
	}
}

func TestQuickSearchAndCount(t *testing.T) {
	idx := newFakeIndex(geneDocs()...)
	svc := newService(idx, nil, newClock())

	docs, err := svc.QuickSearch(context.Background(), "q", 0)
	if err != nil || len(docs) != 2 {
		t.Fatalf("QuickSearch = %v, %v", docs, err)
	}
	n, err := svc.Count(context.Background(), "q")
	if err != nil || n != 2 {
		t.Fatalf("Count = %d, %v", n, err)
	}

	idx.err = domain.ErrIndexSearch
	if _, err := svc.Count(context.Background(), "a:("); !errors.Is(err, domain.ErrIndexSearch) {
		t.Errorf("expected ErrIndexSearch, got %v", err)
	}
}

func TestCacheKeys(t *testing.T) {
	if got := IndexKey("Cbx1", 2); got != "index:Cbx1-page2" {
		t.Errorf("IndexKey = %q", got)
	}
	if got := DatasetKey("MGI:105369"); got != "dataset:MGI:105369" {
		t.Errorf("DatasetKey = %q", got)
	}
}

func TestSearch_LogsCarryRequestFields(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	clk := newClock()
	failing := &countingSource{err: domain.ErrDataSource}
	svc := New(newFakeIndex(geneDocs()...), cache.NewMemory().WithClock(clk.Now),
		[]Dataset{directDataset("broken", failing)}, zap.New(core)).WithClock(clk.Now)

	ctx := logpkg.WithFields(context.Background(), zap.String("request_id", "req-7"))
	if _, err := svc.Search(ctx, "Cbx1", 1, true); err != nil {
		t.Fatalf("Search: %v", err)
	}

	entries := logs.FilterMessage("dataset search failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one dataset failure log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-7" || fields["dataset"] != "broken" {
		t.Errorf("fields = %v", fields)
	}
}
