package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUpstreamTimeout marks an upstream attempt that hit its deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrUpstreamTransport marks an upstream attempt that failed to send or receive,
	// or received a reply that does not belong to the query.
	ErrUpstreamTransport = errors.New("upstream transport error")
)

// FetchError is returned when a feed cannot be downloaded.
// StatusCode is zero for transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StoreError wraps a persistence failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// UpstreamError is a failed attempt against a single upstream server.
// Err wraps ErrUpstreamTimeout or ErrUpstreamTransport.
type UpstreamError struct {
	Server string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Server, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// AllUpstreamsFailedError is returned when every configured upstream failed for one query.
type AllUpstreamsFailedError struct {
	Attempts []error
}

func (e *AllUpstreamsFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all upstreams failed: no upstream servers attempted"
	}
	msgs := make([]string, 0, len(e.Attempts))
	for _, err := range e.Attempts {
		msgs = append(msgs, err.Error())
	}
	return "all upstreams failed: " + strings.Join(msgs, "; ")
}

func (e *AllUpstreamsFailedError) Unwrap() []error { return e.Attempts }
