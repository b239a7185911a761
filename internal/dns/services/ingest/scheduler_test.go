package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

// countingFetcher blocks each fetch on release when it is non-nil.
type countingFetcher struct {
	calls   atomic.Int32
	release chan struct{}
}

func (f *countingFetcher) Fetch(ctx context.Context, _ string) ([]byte, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []byte("0.0.0.0 a.example\n"), nil
}

var schedFeeds = []domain.BlocklistFeed{{Category: domain.CategoryPorn, URL: pornURL, Enabled: true}}

func TestScheduler_RunOnceWithoutInterval(t *testing.T) {
	f := &countingFetcher{}
	s := NewScheduler(NewPipeline(Options{Fetcher: f, Store: newBoltStore(t, testClock), Clock: testClock}), schedFeeds, 0, nil)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, int32(1), f.calls.Load())

	at, results := s.Last()
	assert.Equal(t, testClock.Now(), at)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Inserted)
}

func TestScheduler_RunsOnInterval(t *testing.T) {
	f := &countingFetcher{}
	s := NewScheduler(NewPipeline(Options{Fetcher: f, Store: newBoltStore(t, testClock)}), schedFeeds, 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return f.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestScheduler_ConcurrentTriggersShareRun(t *testing.T) {
	f := &countingFetcher{release: make(chan struct{})}
	s := NewScheduler(NewPipeline(Options{Fetcher: f, Store: newBoltStore(t, testClock)}), schedFeeds, 0, nil)

	var wg sync.WaitGroup
	results := make([][]domain.IngestResult, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.Trigger(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	// Give the other triggers time to join the in-flight run.
	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, r := range results {
		require.Len(t, r, 1)
		assert.Equal(t, 1, r[0].Inserted)
	}
}

func TestScheduler_SkipInitialWaitsForInterval(t *testing.T) {
	f := &countingFetcher{}
	s := NewScheduler(NewPipeline(Options{Fetcher: f, Store: newBoltStore(t, testClock)}), schedFeeds, 50*time.Millisecond, nil)
	s.SkipInitial = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Equal(t, int32(0), f.calls.Load())
	assert.Eventually(t, func() bool { return f.calls.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
