// Package upstream forwards raw DNS queries to an ordered list of recursive
// resolvers over UDP.
package upstream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/common/metrics"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

const (
	errNoServersProvided = "no upstream DNS servers provided"
	errShortQuery        = "query shorter than a DNS header"
	errFailedToConnect   = "failed to connect: %w"
	errWriteFailed       = "write failed: %w"
	errReadFailed        = "read failed: %w"
	errIDMismatch        = "response id %d does not match query id %d"
	errShortResponse     = "response shorter than a DNS header"

	defaultTimeout = 3 * time.Second
	readBufferSize = 4096
)

// DialFunc establishes a network connection. Tests replace it to avoid real sockets.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options configures a Forwarder.
type Options struct {
	// required parameters
	Servers []string
	Timeout time.Duration
	// options to inject for testing purposes
	Dial    DialFunc
	Logger  log.Logger
	Metrics metrics.Recorder
}

// Forwarder sends a query to each server in order until one answers.
type Forwarder struct {
	servers []string
	timeout time.Duration
	dial    DialFunc
	logger  log.Logger
	metrics metrics.Recorder
}

// NewForwarder returns a Forwarder. Timeout defaults to 3 seconds per attempt.
func NewForwarder(opts Options) (*Forwarder, error) {
	if len(opts.Servers) == 0 {
		return nil, errors.New(errNoServersProvided)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	return &Forwarder{
		servers: append([]string(nil), opts.Servers...),
		timeout: opts.Timeout,
		dial:    opts.Dial,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// Servers returns the configured upstreams in fallback order.
func (f *Forwarder) Servers() []string {
	return append([]string(nil), f.servers...)
}

// Forward sends raw to each upstream in order and returns the first reply
// unchanged. Each server is tried at most once. When every server fails the
// error is a *domain.AllUpstreamsFailedError. A cancelled ctx stops the walk
// and its error is returned as-is.
func (f *Forwarder) Forward(ctx context.Context, raw []byte) ([]byte, error) {
	if len(raw) < 12 {
		return nil, errors.New(errShortQuery)
	}
	queryID := binary.BigEndian.Uint16(raw[:2])

	var attempts []error
	for _, server := range f.servers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		resp, err := f.exchange(ctx, server, raw, queryID)
		f.metrics.UpstreamAttempt(server, time.Since(start), err)
		if err == nil {
			f.logger.Debug(map[string]any{
				"server":   server,
				"query_id": queryID,
				"size":     len(resp),
			}, "Upstream answered")
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		f.logger.Warn(map[string]any{
			"server":   server,
			"query_id": queryID,
			"error":    err,
		}, "Upstream attempt failed, trying next server")
		attempts = append(attempts, err)
	}
	return nil, &domain.AllUpstreamsFailedError{Attempts: attempts}
}

// exchange performs one attempt on a fresh socket. The returned error is a
// *domain.UpstreamError wrapping ErrUpstreamTimeout or ErrUpstreamTransport.
func (f *Forwarder) exchange(ctx context.Context, server string, raw []byte, queryID uint16) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	conn, err := f.dial(ctx, "udp", server)
	if err != nil {
		return nil, upstreamError(server, fmt.Errorf(errFailedToConnect, err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	type result struct {
		data []byte
		err  error
	}
	resultChan := make(chan result, 1)

	go func() {
		if _, err := conn.Write(raw); err != nil {
			resultChan <- result{err: fmt.Errorf(errWriteFailed, err)}
			return
		}
		buffer := make([]byte, readBufferSize)
		n, err := conn.Read(buffer)
		if err != nil {
			resultChan <- result{err: fmt.Errorf(errReadFailed, err)}
			return
		}
		if n < 12 {
			resultChan <- result{err: errors.New(errShortResponse)}
			return
		}
		if id := binary.BigEndian.Uint16(buffer[:2]); id != queryID {
			resultChan <- result{err: fmt.Errorf(errIDMismatch, id, queryID)}
			return
		}
		resultChan <- result{data: buffer[:n]}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil {
			return nil, upstreamError(server, res.err)
		}
		return res.data, nil
	case <-ctx.Done():
		// Closing the socket unblocks the reader goroutine.
		_ = conn.Close()
		return nil, upstreamError(server, ctx.Err())
	}
}

func upstreamError(server string, err error) error {
	kind := domain.ErrUpstreamTransport
	if isTimeout(err) {
		kind = domain.ErrUpstreamTimeout
	}
	return &domain.UpstreamError{Server: server, Err: fmt.Errorf("%w: %w", kind, err)}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
