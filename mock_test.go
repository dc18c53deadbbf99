package martsearch

import (
	"context"

	"github.com/kailas-cloud/martsearch/internal/dataset"
	healthuc "github.com/kailas-cloud/martsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/martsearch/internal/usecase/search"
)

// --- searchUseCase mock ---

type mockSearchUC struct {
	searchFn   func(ctx context.Context, query string, page int, useCache bool) (*searchuc.Result, error)
	clearFn    func(ctx context.Context) error
	datasetsFn func() []dataset.Config
}

func (m *mockSearchUC) Search(ctx context.Context, query string, page int, useCache bool) (*searchuc.Result, error) {
	return m.searchFn(ctx, query, page, useCache)
}

func (m *mockSearchUC) ClearCache(ctx context.Context) error {
	return m.clearFn(ctx)
}

func (m *mockSearchUC) Datasets() []dataset.Config {
	return m.datasetsFn()
}

// --- healthUseCase mock ---

type mockHealthUC struct {
	report healthuc.Report
}

func (m *mockHealthUC) Check(_ context.Context) healthuc.Report {
	return m.report
}
