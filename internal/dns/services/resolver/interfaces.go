package resolver

import (
	"context"

	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

// Blocklist decides whether a canonical hostname is sinkholed.
type Blocklist interface {
	Decide(ctx context.Context, hostname string) domain.BlockDecision
}

// Upstream forwards raw query bytes and returns the raw reply.
type Upstream interface {
	Forward(ctx context.Context, raw []byte) ([]byte, error)
}

// DNSResponder answers one decoded query. raw is the query exactly as the
// client sent it and is what gets forwarded upstream.
type DNSResponder interface {
	HandleQuery(ctx context.Context, query domain.Question, raw []byte) domain.DNSResponse
}
