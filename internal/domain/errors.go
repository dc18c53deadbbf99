package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrIndexUnavailable signals that the search index cannot be reached or reports not-OK.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrIndexSearch signals that the search index rejected the query.
	ErrIndexSearch = errors.New("index search error")
	// ErrDataSource signals a remote or query-level failure of one data source.
	ErrDataSource = errors.New("data source error")
	// ErrDataSourceTimeout signals that a data source did not answer within its budget.
	ErrDataSourceTimeout = errors.New("data source timeout")
	// ErrInvalidConfig signals a configuration that cannot be wired at startup.
	ErrInvalidConfig = errors.New("invalid config")
)

// ErrorKind classifies a SearchError.
type ErrorKind string

const (
	// KindIndexUnavailable is fatal to the whole search call.
	KindIndexUnavailable ErrorKind = "index_unavailable"
	// KindIndexSearch is fatal to the whole search call.
	KindIndexSearch ErrorKind = "index_search_error"
	// KindDataSource is isolated to one dataset.
	KindDataSource ErrorKind = "datasource_error"
	// KindDataSourceTimeout is isolated to one dataset.
	KindDataSourceTimeout ErrorKind = "datasource_timeout"
	// KindInvalidConfig is only raised at startup.
	KindInvalidConfig ErrorKind = "invalid_config"
)

var kindSentinels = map[ErrorKind]error{
	KindIndexUnavailable:  ErrIndexUnavailable,
	KindIndexSearch:       ErrIndexSearch,
	KindDataSource:        ErrDataSource,
	KindDataSourceTimeout: ErrDataSourceTimeout,
	KindInvalidConfig:     ErrInvalidConfig,
}

// Fatal reports whether errors of this kind abort a search call.
func (k ErrorKind) Fatal() bool {
	return k == KindIndexUnavailable || k == KindIndexSearch
}

// SearchError is the structured error accumulated during one search call.
type SearchError struct {
	Kind    ErrorKind `json:"kind"`
	Dataset string    `json:"dataset,omitempty"`
	Message string    `json:"message"`
}

// NewSearchError builds a SearchError from an underlying error.
func NewSearchError(kind ErrorKind, dataset string, err error) SearchError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return SearchError{Kind: kind, Dataset: dataset, Message: msg}
}

func (e SearchError) Error() string {
	if e.Dataset != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Dataset, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the sentinel error matching the kind, so errors.Is works on SearchError values.
func (e SearchError) Unwrap() error { return kindSentinels[e.Kind] }

// KindOf maps an error onto the taxonomy. An expired context deadline counts as a
// timeout; unknown errors from a data source count as KindDataSource.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrIndexUnavailable):
		return KindIndexUnavailable
	case errors.Is(err, ErrIndexSearch):
		return KindIndexSearch
	case errors.Is(err, ErrDataSourceTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindDataSourceTimeout
	case errors.Is(err, ErrInvalidConfig):
		return KindInvalidConfig
	default:
		return KindDataSource
	}
}
