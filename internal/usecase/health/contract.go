package health

import "context"

// CachePinger checks cache backend availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// IndexChecker checks search index liveness.
type IndexChecker interface {
	IsAlive(ctx context.Context) error
}
