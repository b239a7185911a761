// Package transport serves DNS queries over UDP and TCP. It converts between
// wire format and domain objects so the service layer only sees domain types.
package transport

import (
	"context"

	"github.com/haukened/dns-sinkhole/internal/dns/services/resolver"
)

// ServerTransport is a listening DNS server.
type ServerTransport interface {
	// Start binds the listener and serves queries with handler until Stop is
	// called or ctx is cancelled.
	Start(ctx context.Context, handler resolver.DNSResponder) error

	// Stop closes the listener. It is safe to call more than once.
	Stop() error

	// Address returns the bound address once started, the configured one before.
	Address() string
}

// TransportType names a supported transport protocol.
type TransportType string

const (
	// TransportUDP is standard DNS over UDP (RFC 1035).
	TransportUDP TransportType = "udp"

	// TransportTCP is DNS over TCP with two-byte length framing (RFC 7766).
	TransportTCP TransportType = "tcp"
)
