package blocklist

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/haukened/dns-sinkhole/internal/dns/common/clock"
	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/common/metrics"
	"github.com/haukened/dns-sinkhole/internal/dns/common/utils"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

// Options configures a Repository.
type Options struct {
	Store Store
	Cache DecisionCache
	// BloomFactory enables the Bloom pre-filter when non-nil and BloomFPRate > 0.
	BloomFactory    BloomFactory
	BloomFPRate     float64
	MatchSubdomains bool
	Clock           clock.Clock
	Logger          log.Logger
	Metrics         metrics.Recorder
}

// repository implements Repository by composing a Store, an optional Bloom
// filter and a DecisionCache. Reads go bloom → cache → store.
type repository struct {
	mu    sync.RWMutex
	bloom BloomFilter

	store   Store
	cache   DecisionCache
	factory BloomFactory
	fpRate  float64
	suffix  bool
	clock   clock.Clock
	logger  log.Logger
	metrics metrics.Recorder

	group singleflight.Group
	// gen changes on every Invalidate; lookups that started under an older
	// generation do not write their result back into the cache.
	gen atomic.Uint64

	storeLookups    atomic.Uint64
	storeErrors     atomic.Uint64
	bloomSkips      atomic.Uint64
	lastInvalidated atomic.Int64
}

// NewRepository constructs a Repository. When the Bloom filter is enabled it is
// built from the store before returning.
func NewRepository(ctx context.Context, opts Options) (Repository, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("blocklist store is required")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("decision cache is required")
	}
	if opts.Clock == nil {
		opts.Clock = &clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	r := &repository{
		store:   opts.Store,
		cache:   opts.Cache,
		factory: opts.BloomFactory,
		fpRate:  opts.BloomFPRate,
		suffix:  opts.MatchSubdomains,
		clock:   opts.Clock,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if r.bloomEnabled() {
		bf, err := r.buildBloom(ctx)
		if err != nil {
			return nil, err
		}
		r.bloom = bf
	}
	return r, nil
}

// IsBlocked reports whether hostname is listed verbatim in any category.
// Policy: on store errors, prefer Allow (not blocked) and do not memoize.
func (r *repository) IsBlocked(ctx context.Context, hostname string) bool {
	cn := utils.CanonicalDNSName(hostname)
	if cn == "" {
		return false
	}
	// 1) checkBloom: early-allow if definitively negative
	if !r.checkBloom(cn) {
		r.bloomSkips.Add(1)
		return false
	}
	// 2) checkCache
	if blocked, ok := r.cache.Get(cn); ok {
		r.metrics.CacheLookup(true)
		return blocked
	}
	r.metrics.CacheLookup(false)
	// 3) checkStore, collapsing concurrent misses for the same name
	v, err, _ := r.group.Do(cn, func() (any, error) {
		return r.checkStore(ctx, cn)
	})
	if err != nil {
		r.logger.Warn(map[string]any{"hostname": cn, "error": err}, "Blocklist lookup failed, allowing query")
		return false
	}
	return v.(bool)
}

// IsBlockedBySuffix reports whether a proper parent of hostname is listed.
// Parents are checked from most specific up to the registrable domain; the name
// itself and the bare TLD are never checked here.
func (r *repository) IsBlockedBySuffix(ctx context.Context, hostname string) bool {
	_, ok := r.matchParent(ctx, hostname)
	return ok
}

// Decide checks the exact name first and then, when subdomain matching is on,
// its parents.
func (r *repository) Decide(ctx context.Context, hostname string) domain.BlockDecision {
	cn := utils.CanonicalDNSName(hostname)
	if r.IsBlocked(ctx, cn) {
		return domain.ExactDecision(cn)
	}
	if !r.suffix {
		return domain.EmptyDecision()
	}
	if parent, ok := r.matchParent(ctx, cn); ok {
		return domain.SuffixDecision(parent)
	}
	return domain.EmptyDecision()
}

// Invalidate rebuilds the Bloom filter (when enabled) and purges the decision
// cache. If the rebuild fails the filter is dropped so the store stays authoritative.
func (r *repository) Invalidate(ctx context.Context) error {
	r.gen.Add(1)
	var (
		bf  BloomFilter
		err error
	)
	if r.bloomEnabled() {
		bf, err = r.buildBloom(ctx)
		if err != nil {
			r.logger.Error(map[string]any{"error": err}, "Bloom filter rebuild failed, falling back to store lookups")
		}
	}
	r.mu.Lock()
	r.bloom = bf
	r.cache.Purge()
	r.mu.Unlock()
	r.lastInvalidated.Store(r.clock.Now().Unix())
	r.logger.Info(map[string]any{"bloom": bf != nil}, "Block decision cache invalidated")
	return err
}

// RepoStats returns cache and store counters. Store errors leave Store zeroed.
func (r *repository) RepoStats(ctx context.Context) RepoStats {
	st, err := r.store.Stats(ctx)
	if err != nil {
		r.logger.Warn(map[string]any{"error": err}, "Failed to read store stats")
	}
	return RepoStats{
		Cache:           r.cache.Stats(),
		Store:           st,
		StoreLookups:    r.storeLookups.Load(),
		StoreErrors:     r.storeErrors.Load(),
		BloomSkips:      r.bloomSkips.Load(),
		LastInvalidated: r.lastInvalidated.Load(),
	}
}

func (r *repository) matchParent(ctx context.Context, hostname string) (string, bool) {
	for _, parent := range utils.ParentDomains(hostname) {
		if r.IsBlocked(ctx, parent) {
			return parent, true
		}
	}
	return "", false
}

func (r *repository) bloomEnabled() bool {
	return r.factory != nil && r.fpRate > 0
}

// buildBloom sizes a filter from the store's distinct hostname count and loads every hostname.
func (r *repository) buildBloom(ctx context.Context) (BloomFilter, error) {
	st, err := r.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("bloom sizing: %w", err)
	}
	bf := r.factory.New(st.Hostnames, r.fpRate)
	var n uint64
	err = r.store.Hostnames(ctx, func(h string) bool {
		bf.Add([]byte(h))
		n++
		return ctx.Err() == nil
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("bloom load: %w", err)
	}
	r.logger.Debug(map[string]any{"hostnames": n, "fp_rate": r.fpRate}, "Bloom filter built")
	return bf, nil
}

// checkBloom returns true if we should consult the cache and store (maybe-positive),
// or false if we can early-allow (definitely negative). If no bloom is loaded,
// returns true to allow authoritative checking.
func (r *repository) checkBloom(cn string) bool {
	r.mu.RLock()
	bf := r.bloom
	r.mu.RUnlock()
	if bf == nil {
		return true
	}
	return bf.MightContain([]byte(cn))
}

// checkStore consults the authoritative store and memoizes the answer when
// no invalidation happened while the lookup was in flight.
func (r *repository) checkStore(ctx context.Context, cn string) (bool, error) {
	gen := r.gen.Load()
	r.storeLookups.Add(1)
	blocked, err := r.store.Exists(ctx, cn)
	r.metrics.StoreLookup(err)
	if err != nil {
		r.storeErrors.Add(1)
		return false, err
	}
	// Invalidate purges under the write lock, so a write that passed the
	// generation check always lands before that purge.
	r.mu.RLock()
	if r.gen.Load() == gen {
		r.cache.Put(cn, blocked)
	}
	r.mu.RUnlock()
	return blocked, nil
}

var _ Repository = (*repository)(nil)
