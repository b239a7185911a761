package ingest

import (
	"context"

	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

// Fetcher retrieves a feed body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Store is the part of the blocklist store ingestion writes through.
type Store interface {
	ListByCategory(ctx context.Context, category domain.Category) ([]domain.HostKey, error)
	BulkInsert(ctx context.Context, entries []domain.HostEntry) (int, error)
}

// Invalidator is told when a run has committed new entries.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(ctx context.Context) error

func (f InvalidatorFunc) Invalidate(ctx context.Context) error { return f(ctx) }
