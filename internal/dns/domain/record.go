package domain

import (
	"fmt"
	"net/netip"

	"github.com/haukened/dns-sinkhole/internal/dns/common/utils"
)

// ResourceRecord is an answer record synthesized by the sinkhole.
// Only address records are ever built locally; everything else comes back from
// an upstream as raw bytes and is never decoded.
type ResourceRecord struct {
	Name  string
	Type  RRType
	Class RRClass
	TTL   uint32
	Addr  netip.Addr
}

// NewAddressRecord builds an A or AAAA record for name depending on the address family.
func NewAddressRecord(name string, addr netip.Addr, ttl uint32) (ResourceRecord, error) {
	rr := ResourceRecord{
		Name:  utils.CanonicalDNSName(name),
		Class: RRClassIN,
		TTL:   ttl,
		Addr:  addr,
	}
	switch {
	case addr.Is4():
		rr.Type = RRTypeA
	case addr.Is6():
		rr.Type = RRTypeAAAA
	default:
		return ResourceRecord{}, fmt.Errorf("invalid address for record %q", name)
	}
	if err := rr.Validate(); err != nil {
		return ResourceRecord{}, err
	}
	return rr, nil
}

// Validate checks whether the ResourceRecord fields are consistent.
func (rr ResourceRecord) Validate() error {
	if rr.Name == "" {
		return fmt.Errorf("record name must not be empty")
	}
	switch rr.Type {
	case RRTypeA:
		if !rr.Addr.Is4() {
			return fmt.Errorf("A record %q requires an IPv4 address", rr.Name)
		}
	case RRTypeAAAA:
		if !rr.Addr.Is6() || rr.Addr.Is4In6() {
			return fmt.Errorf("AAAA record %q requires an IPv6 address", rr.Name)
		}
	default:
		return fmt.Errorf("unsupported record type %s", rr.Type)
	}
	return nil
}
