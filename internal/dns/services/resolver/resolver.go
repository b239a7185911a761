// Package resolver answers client queries: blocked names get a null address,
// everything else is forwarded upstream verbatim.
package resolver

import (
	"context"
	"errors"
	"net/netip"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/common/metrics"
	"github.com/haukened/dns-sinkhole/internal/dns/common/utils"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

// DefaultBlockTTL is the TTL on synthesized sinkhole answers.
const DefaultBlockTTL uint32 = 300

// Addresses returned for blocked A and AAAA queries.
var (
	DefaultNullIPv4 = netip.IPv4Unspecified()
	DefaultNullIPv6 = netip.IPv6Unspecified()
)

// Resolver holds no per-query state and is safe for concurrent use.
type Resolver struct {
	blocklist Blocklist
	upstream  Upstream
	logger    log.Logger
	metrics   metrics.Recorder
	blockTTL  uint32
	nullIPv4  netip.Addr
	nullIPv6  netip.Addr
}

// ResolverOptions configures NewResolver. A nil Logger or Metrics is replaced with a no-op.
type ResolverOptions struct {
	Blocklist Blocklist
	Upstream  Upstream
	Logger    log.Logger
	Metrics   metrics.Recorder
	// Zero values select DefaultBlockTTL, DefaultNullIPv4 and DefaultNullIPv6.
	BlockTTL uint32
	NullIPv4 netip.Addr
	NullIPv6 netip.Addr
}

// NewResolver returns a Resolver that answers from the blocklist and forwards the rest.
func NewResolver(opts ResolverOptions) *Resolver {
	r := &Resolver{
		blocklist: opts.Blocklist,
		upstream:  opts.Upstream,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		blockTTL:  opts.BlockTTL,
		nullIPv4:  opts.NullIPv4,
		nullIPv6:  opts.NullIPv6,
	}
	if r.logger == nil {
		r.logger = log.NewNoopLogger()
	}
	if r.metrics == nil {
		r.metrics = metrics.NewNoop()
	}
	if r.blockTTL == 0 {
		r.blockTTL = DefaultBlockTTL
	}
	if !r.nullIPv4.Is4() {
		r.nullIPv4 = DefaultNullIPv4
	}
	if !r.nullIPv6.Is6() || r.nullIPv6.Is4In6() {
		r.nullIPv6 = DefaultNullIPv6
	}
	return r
}

// HandleQuery produces the reply for query. Blocked names are answered locally
// and never forwarded. Forwarded replies carry the upstream bytes unchanged.
// Any forwarding failure becomes SERVFAIL with the client's ID.
func (r *Resolver) HandleQuery(ctx context.Context, query domain.Question, raw []byte) domain.DNSResponse {
	name := utils.CanonicalDNSName(query.Name)

	decision := r.blocklist.Decide(ctx, name)
	if decision.IsBlocked() {
		return r.blocked(query, name, decision)
	}

	if r.upstream == nil || len(raw) == 0 {
		r.logger.Error(map[string]any{"query_id": query.ID, "name": name}, "No upstream available for query")
		r.metrics.Query(metrics.OutcomeServFail, query.Type.String())
		return domain.NewDNSErrorResponse(query.ID, domain.RCodeServFail)
	}

	reply, err := r.upstream.Forward(ctx, raw)
	if err != nil {
		fields := map[string]any{"query_id": query.ID, "name": name, "type": query.Type.String(), "error": err}
		var all *domain.AllUpstreamsFailedError
		if errors.As(err, &all) {
			fields["attempts"] = len(all.Attempts)
		}
		r.logger.Error(fields, "Upstream resolution failed")
		r.metrics.Query(metrics.OutcomeServFail, query.Type.String())
		return domain.NewDNSErrorResponse(query.ID, domain.RCodeServFail)
	}

	r.logger.Debug(map[string]any{"query_id": query.ID, "name": name, "type": query.Type.String()}, "Forwarded query")
	r.metrics.Query(metrics.OutcomeForwarded, query.Type.String())
	return domain.NewPassThroughResponse(query.ID, reply)
}

func (r *Resolver) blocked(query domain.Question, name string, decision domain.BlockDecision) domain.DNSResponse {
	resp := domain.DNSResponse{ID: query.ID, RCode: domain.RCodeNoError}

	// Non-IN classes get NODATA.
	var addr netip.Addr
	switch {
	case !query.Class.Internet():
	case query.Type == domain.RRTypeA:
		addr = r.nullIPv4
	case query.Type == domain.RRTypeAAAA:
		addr = r.nullIPv6
	}
	if addr.IsValid() {
		rr, err := domain.NewAddressRecord(name, addr, r.blockTTL)
		if err != nil {
			r.logger.Warn(map[string]any{"name": name, "error": err}, "Failed to build sinkhole answer")
		} else {
			resp.Answers = append(resp.Answers, rr)
		}
	}

	r.logger.Info(map[string]any{
		"query_id": query.ID,
		"name":     name,
		"type":     query.Type.String(),
		"decision": decision.String(),
	}, "Blocked query")
	r.metrics.Query(metrics.OutcomeBlocked, query.Type.String())
	return resp
}

var _ DNSResponder = (*Resolver)(nil)
