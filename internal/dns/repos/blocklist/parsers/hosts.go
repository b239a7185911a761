package parsers

import (
	"io"
	"net/netip"
	"strings"
	"time"

	logpkg "github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

// ParseHostsFile reads an /etc/hosts style feed such as StevenBlack's. Each
// line is an IP followed by the names it maps. Wildcards, leading-dot names,
// IP literals and single-label names (localhost) are dropped, as is every
// token after one starting with '#'. Only read errors fail the parse.
func ParseHostsFile(r io.Reader, category domain.Category, logger logpkg.Logger, now time.Time) ([]domain.HostEntry, error) {
	return feedReader{format: "hosts", category: category, logger: logger, now: now}.read(r, hostsLine)
}

func hostsLine(line string) (string, []string, string) {
	fields := strings.Fields(line)
	addr, err := netip.ParseAddr(fields[0])
	if err != nil {
		return "", nil, "invalid_ip"
	}
	names := fields[1:]
	for i, tok := range names {
		if strings.HasPrefix(tok, "#") {
			names = names[:i]
			break
		}
	}
	if len(names) == 0 {
		return "", nil, "no_hostnames"
	}
	// IPv6 is stored compressed, so "0:0:0:0:0:0:0:0" and "::" are one key.
	return addr.String(), names, ""
}
