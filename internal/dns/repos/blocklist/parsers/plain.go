package parsers

import (
	"io"
	"strings"
	"time"

	logpkg "github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

// ParsePlainList reads a one-domain-per-line feed. Every entry is recorded
// against ip. "*." and "." prefixes are accepted and dropped, since subdomain
// matching already covers the children they denote.
func ParsePlainList(r io.Reader, category domain.Category, ip string, logger logpkg.Logger, now time.Time) ([]domain.HostEntry, error) {
	return feedReader{format: "plain", category: category, logger: logger, now: now}.read(r, func(line string) (string, []string, string) {
		name := normalizeDomainName(stripInlineComment(line))
		if strings.ContainsAny(name, " \t") {
			return "", nil, "not_a_domain"
		}
		return ip, []string{name}, ""
	})
}
