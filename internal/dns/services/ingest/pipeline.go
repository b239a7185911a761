// Package ingest fills the blocklist store from remote categorized feeds.
package ingest

import (
	"bytes"
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haukened/dns-sinkhole/internal/dns/common/clock"
	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/common/metrics"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
	"github.com/haukened/dns-sinkhole/internal/dns/repos/blocklist/parsers"
)

type Options struct {
	Fetcher      Fetcher
	Store        Store
	Invalidators []Invalidator
	Clock        clock.Clock
	Logger       log.Logger
	Metrics      metrics.Recorder
	// Concurrency is the number of categories processed at once; 0 or 1 is serial.
	Concurrency int
	// FeedTimeout bounds fetching, parsing and persisting a single feed; 0 disables.
	FeedTimeout time.Duration
}

// Pipeline ingests feeds. It is safe for concurrent use, but overlapping runs
// should be collapsed by the caller (see Scheduler).
type Pipeline struct {
	fetcher      Fetcher
	store        Store
	invalidators []Invalidator
	clock        clock.Clock
	logger       log.Logger
	metrics      metrics.Recorder
	concurrency  int
	feedTimeout  time.Duration
}

func NewPipeline(opts Options) *Pipeline {
	p := &Pipeline{
		fetcher:      opts.Fetcher,
		store:        opts.Store,
		invalidators: opts.Invalidators,
		clock:        opts.Clock,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		concurrency:  opts.Concurrency,
		feedTimeout:  opts.FeedTimeout,
	}
	if p.clock == nil {
		p.clock = clock.RealClock{}
	}
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	if p.metrics == nil {
		p.metrics = metrics.NewNoop()
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	return p
}

// AddInvalidator registers another hook run after entries are committed.
func (p *Pipeline) AddInvalidator(inv Invalidator) {
	p.invalidators = append(p.invalidators, inv)
}

// IngestAll processes every enabled feed and returns one result per enabled
// feed, in input order. Failures are reported in the results; one feed
// failing never stops the others. Feeds sharing a category run on the same
// goroutine, one after another.
func (p *Pipeline) IngestAll(ctx context.Context, feeds []domain.BlocklistFeed) []domain.IngestResult {
	var enabled []domain.BlocklistFeed
	for _, f := range feeds {
		if f.Enabled {
			enabled = append(enabled, f)
		}
	}
	results := make([]domain.IngestResult, len(enabled))

	// category -> indexes into enabled, in order of first appearance
	var order []domain.Category
	byCategory := map[domain.Category][]int{}
	for i, f := range enabled {
		if _, ok := byCategory[f.Category]; !ok {
			order = append(order, f.Category)
		}
		byCategory[f.Category] = append(byCategory[f.Category], i)
	}

	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)
	for _, cat := range order {
		idxs := byCategory[cat]
		g.Go(func() error {
			for _, i := range idxs {
				results[i] = p.ingestOne(ctx, enabled[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, r := range results {
		total += r.Inserted
	}
	if total > 0 {
		p.invalidate(ctx, total)
	}
	return results
}

func (p *Pipeline) ingestOne(ctx context.Context, feed domain.BlocklistFeed) domain.IngestResult {
	if p.feedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.feedTimeout)
		defer cancel()
	}
	res := domain.IngestResult{Category: feed.Category}
	start := p.clock.Now()

	inserted, parsed, err := p.process(ctx, feed)
	res.Inserted = inserted
	res.Err = err
	p.metrics.Ingested(string(feed.Category), inserted, err)

	if err != nil {
		p.logger.Error(map[string]any{
			"category": string(feed.Category),
			"url":      feed.URL,
			"error":    err,
		}, "Error processing")
		return res
	}
	p.logger.Info(map[string]any{
		"category": string(feed.Category),
		"url":      feed.URL,
		"parsed":   parsed,
		"inserted": inserted,
		"duration": p.clock.Now().Sub(start).String(),
	}, "Processed category")
	return res
}

// process returns the number of rows inserted and the number of entries parsed.
func (p *Pipeline) process(ctx context.Context, feed domain.BlocklistFeed) (int, int, error) {
	body, err := p.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		return 0, 0, err
	}

	entries, err := parsers.Parse(feed.Format, bytes.NewReader(body), feed.Category, p.logger, p.clock.Now())
	if err != nil {
		return 0, 0, err
	}

	existing, err := p.store.ListByCategory(ctx, feed.Category)
	if err != nil {
		return 0, len(entries), err
	}
	seen := make(map[domain.HostKey]struct{}, len(existing))
	for _, k := range existing {
		seen[k] = struct{}{}
	}
	fresh := entries[:0]
	for _, e := range entries {
		if _, ok := seen[e.Key()]; ok {
			continue
		}
		fresh = append(fresh, e)
	}
	if len(fresh) == 0 {
		return 0, len(entries), nil
	}

	n, err := p.store.BulkInsert(ctx, fresh)
	if err != nil {
		return 0, len(entries), err
	}
	return n, len(entries), nil
}

func (p *Pipeline) invalidate(ctx context.Context, inserted int) {
	for _, inv := range p.invalidators {
		if err := inv.Invalidate(ctx); err != nil {
			p.logger.Warn(map[string]any{"error": err, "inserted": inserted}, "Blocklist invalidation failed")
		}
	}
}
