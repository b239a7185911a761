// Package feed downloads blocklist feeds over HTTP.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

const (
	DefaultUserAgent = "dns-sinkhole/1.0"
	DefaultMaxBytes  = 64 << 20
	DefaultTimeout   = 2 * time.Minute
)

// ErrFeedTooLarge is wrapped in a *domain.FetchError when a body exceeds MaxBytes.
var ErrFeedTooLarge = errors.New("feed exceeds size limit")

// Options configures an HTTPFetcher.
type Options struct {
	Client    *http.Client
	UserAgent string
	MaxBytes  int64
	Timeout   time.Duration
	Logger    log.Logger
}

// HTTPFetcher retrieves feed bodies with HTTP GET.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	logger    log.Logger
}

func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &HTTPFetcher{
		client:    opts.Client,
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		logger:    opts.Logger,
	}
}

// Fetch returns the full body of url. Transport failures, non-2xx statuses and
// oversized bodies are reported as *domain.FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain, */*")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		return nil, &domain.FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("http status %s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &domain.FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &domain.FetchError{URL: url, Err: fmt.Errorf("%w (%d bytes)", ErrFeedTooLarge, f.maxBytes)}
	}

	f.logger.Debug(map[string]any{
		"url":      url,
		"bytes":    len(body),
		"duration": time.Since(start).String(),
	}, "Fetched blocklist feed")
	return body, nil
}
