package martsearch

import "github.com/kailas-cloud/martsearch/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check; SearchError values unwrap to the sentinel of their kind.
var (
	ErrIndexUnavailable  = domain.ErrIndexUnavailable
	ErrIndexSearch       = domain.ErrIndexSearch
	ErrDataSource        = domain.ErrDataSource
	ErrDataSourceTimeout = domain.ErrDataSourceTimeout
	ErrInvalidConfig     = domain.ErrInvalidConfig
)
