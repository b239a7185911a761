package domain

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/haukened/dns-sinkhole/internal/dns/common/utils"
)

// Category tags the feed a HostEntry came from.
type Category string

// Categories shipped in the default feed set.
const (
	CategoryAdwareMalware Category = "ADWARE_MALWARE_LINK"
	CategoryFakeNews      Category = "FAKE_NEWS"
	CategoryGambling      Category = "GAMBLING"
	CategoryPorn          Category = "PORN"
	CategorySocial        Category = "SOCIAL"
)

// HostKey is the (ip, hostname) pair that is unique within a category.
type HostKey struct {
	IP       string
	Hostname string
}

// HostEntry is one persisted blocklist line: a hostname listed under a category
// with the address the feed mapped it to. Entries are only ever appended.
type HostEntry struct {
	ID       uint64
	IP       string
	Hostname string
	Category Category
	AddedAt  time.Time
}

// NewHostEntry normalizes hostname and validates the entry.
func NewHostEntry(ip, hostname string, category Category, addedAt time.Time) (HostEntry, error) {
	e := HostEntry{
		IP:       ip,
		Hostname: utils.CanonicalDNSName(hostname),
		Category: category,
		AddedAt:  addedAt,
	}
	if err := e.Validate(); err != nil {
		return HostEntry{}, err
	}
	return e, nil
}

// Validate checks that the entry is storable.
func (e HostEntry) Validate() error {
	if e.Hostname == "" {
		return fmt.Errorf("hostname must not be empty")
	}
	if e.Category == "" {
		return fmt.Errorf("category must not be empty")
	}
	if _, err := netip.ParseAddr(e.IP); err != nil {
		return fmt.Errorf("invalid ip %q for %s: %w", e.IP, e.Hostname, err)
	}
	return nil
}

// Key returns the de-duplication key of the entry.
func (e HostEntry) Key() HostKey {
	return HostKey{IP: e.IP, Hostname: e.Hostname}
}
