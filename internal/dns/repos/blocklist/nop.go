package blocklist

import (
	"context"

	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

// NoopStore is an always-empty Store. It backs the "none" driver, which turns
// the sinkhole into a plain forwarder.
type NoopStore struct{}

func (NoopStore) Exists(context.Context, string) (bool, error) { return false, nil }

func (NoopStore) ListByCategory(context.Context, domain.Category) ([]domain.HostKey, error) {
	return nil, nil
}

// BulkInsert accepts and discards entries.
func (NoopStore) BulkInsert(context.Context, []domain.HostEntry) (int, error) { return 0, nil }

func (NoopStore) Hostnames(context.Context, func(string) bool) error { return nil }

func (NoopStore) Stats(context.Context) (StoreStats, error) { return StoreStats{}, nil }

func (NoopStore) Close() error { return nil }

var _ Store = NoopStore{}
