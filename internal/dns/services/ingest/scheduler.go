package ingest

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

// Scheduler runs the pipeline at startup and then on a fixed interval.
// Overlapping triggers share one run.
type Scheduler struct {
	pipeline *Pipeline
	feeds    []domain.BlocklistFeed
	interval time.Duration
	logger   log.Logger

	// SkipInitial makes Run wait one interval before the first ingestion.
	SkipInitial bool

	group singleflight.Group

	mu      sync.RWMutex
	lastRun time.Time
	last    []domain.IngestResult
}

func NewScheduler(p *Pipeline, feeds []domain.BlocklistFeed, interval time.Duration, logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Scheduler{
		pipeline: p,
		feeds:    append([]domain.BlocklistFeed(nil), feeds...),
		interval: interval,
		logger:   logger,
	}
}

// Run ingests immediately, then every interval until ctx ends. A non-positive
// interval runs once and returns.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.SkipInitial {
		s.Trigger(ctx)
	}
	if s.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Trigger(ctx)
		}
	}
}

// Trigger runs ingestion now, or joins the run already in progress.
func (s *Scheduler) Trigger(ctx context.Context) []domain.IngestResult {
	v, _, shared := s.group.Do("ingest", func() (any, error) {
		results := s.pipeline.IngestAll(ctx, s.feeds)
		s.mu.Lock()
		s.lastRun = s.pipeline.clock.Now()
		s.last = results
		s.mu.Unlock()
		return results, nil
	})
	if shared {
		s.logger.Debug(nil, "Joined ingestion run already in progress")
	}
	return v.([]domain.IngestResult)
}

// Last returns the results of the most recent completed run.
func (s *Scheduler) Last() (time.Time, []domain.IngestResult) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun, append([]domain.IngestResult(nil), s.last...)
}
