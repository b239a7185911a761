package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

// HostResolver turns the database host name into addresses. It is handed to
// the connection builder so tests and deployments can choose how the database
// host is resolved without touching process-wide name resolution.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// SystemResolver uses the platform resolver.
func SystemResolver() HostResolver { return net.DefaultResolver }

// PinnedResolver resolves A and AAAA records by asking one DNS server directly.
type PinnedResolver struct {
	Server string
	client *dns.Client
}

// NewPinnedResolver returns a resolver that sends queries to server ("ip:port").
func NewPinnedResolver(server string, timeout time.Duration) *PinnedResolver {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PinnedResolver{
		Server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// LookupHost returns IPv4 addresses first, then IPv6. IP literals are returned unchanged.
func (r *PinnedResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if _, err := netip.ParseAddr(host); err == nil {
		return []string{host}, nil
	}
	var (
		addrs []string
		errs  []error
	)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), qtype)
		m.RecursionDesired = true
		in, _, err := r.client.ExchangeContext(ctx, m, r.Server)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", dns.TypeToString[qtype], host, err))
			continue
		}
		if in.Rcode != dns.RcodeSuccess {
			errs = append(errs, fmt.Errorf("%s %s: %s", dns.TypeToString[qtype], host, dns.RcodeToString[in.Rcode]))
			continue
		}
		for _, rr := range in.Answer {
			switch v := rr.(type) {
			case *dns.A:
				addrs = append(addrs, v.A.String())
			case *dns.AAAA:
				addrs = append(addrs, v.AAAA.String())
			}
		}
	}
	if len(addrs) == 0 {
		if len(errs) == 0 {
			errs = append(errs, fmt.Errorf("no address records for %s", host))
		}
		return nil, fmt.Errorf("resolve %s via %s: %w", host, r.Server, errors.Join(errs...))
	}
	return addrs, nil
}

var _ HostResolver = (*PinnedResolver)(nil)
var _ HostResolver = (*net.Resolver)(nil)
