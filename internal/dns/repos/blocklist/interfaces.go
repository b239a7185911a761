package blocklist

import (
	"context"

	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// BloomFilter is the minimal interface the repository needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds a filter sized for capacity keys at the target false-positive rate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// DecisionCache memoizes exact-hostname block decisions with basic metrics.
// Implementations must be safe for concurrent use.
type DecisionCache interface {
	Get(name string) (blocked bool, ok bool)
	Put(name string, blocked bool)
	Len() int
	Purge()
	Stats() CacheStats
}

// Store is the persistent blocklist.
//   - Exists: true if any entry, in any category, has exactly this hostname
//   - ListByCategory: every (ip, hostname) pair already stored under category
//   - BulkInsert: all-or-nothing write of new entries; returns how many were written
//   - Hostnames: streams distinct hostnames until visit returns false
type Store interface {
	Exists(ctx context.Context, hostname string) (bool, error)
	ListByCategory(ctx context.Context, category domain.Category) ([]domain.HostKey, error)
	BulkInsert(ctx context.Context, entries []domain.HostEntry) (int, error)
	Hostnames(ctx context.Context, visit func(hostname string) bool) error
	Stats(ctx context.Context) (StoreStats, error)
	Close() error
}

// Repository answers block questions for the resolver.
// IsBlocked is exact-match only; IsBlockedBySuffix checks proper parents only;
// Decide combines them according to the repository's matching policy.
// Invalidate drops every memoized decision and rebuilds derived indexes.
type Repository interface {
	IsBlocked(ctx context.Context, hostname string) bool
	IsBlockedBySuffix(ctx context.Context, hostname string) bool
	Decide(ctx context.Context, hostname string) domain.BlockDecision
	Invalidate(ctx context.Context) error
	RepoStats(ctx context.Context) RepoStats
}
