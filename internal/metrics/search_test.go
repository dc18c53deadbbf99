package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCacheLookup(t *testing.T) {
	before := testutil.ToFloat64(CacheLookupsTotal.WithLabelValues(LayerIndex, ResultHit))
	ObserveCacheLookup(LayerIndex, ResultHit)
	after := testutil.ToFloat64(CacheLookupsTotal.WithLabelValues(LayerIndex, ResultHit))

	if after-before != 1 {
		t.Errorf("expected hit counter to grow by 1, got %f", after-before)
	}
}

func TestObserveDatasetRequest(t *testing.T) {
	before := testutil.ToFloat64(DatasetRequestsTotal.WithLabelValues("ensembl", "timeout"))
	ObserveDatasetRequest("ensembl", "timeout", 20*time.Second)
	after := testutil.ToFloat64(DatasetRequestsTotal.WithLabelValues("ensembl", "timeout"))

	if after-before != 1 {
		t.Errorf("expected dataset counter to grow by 1, got %f", after-before)
	}
	if testutil.CollectAndCount(DatasetRequestDuration) == 0 {
		t.Error("expected dataset_request_duration_seconds to have observations")
	}
}

func TestObserveSearch(t *testing.T) {
	ObserveSearch("partial")
	if v := testutil.ToFloat64(SearchRequestsTotal.WithLabelValues("partial")); v < 1 {
		t.Errorf("expected search_requests_total{status=partial} >= 1, got %f", v)
	}
}

func TestRegister_Idempotent(t *testing.T) {
	Register()
	Register()
}
