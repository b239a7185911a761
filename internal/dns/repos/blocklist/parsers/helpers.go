package parsers

import (
	"net/netip"
	"strings"

	"github.com/haukened/dns-sinkhole/internal/dns/common/utils"
)

const (
	maxNameLen  = 253
	maxLabelLen = 63
)

// isValidHostname checks whether a canonical name can be stored as a blocklist entry.
// It enforces the following rules:
//   - The total length must not exceed 253 characters.
//   - The name must contain at least two labels (e.g., example.com).
//   - Each label must be between 1 and 63 characters long.
//   - Labels hold only letters, digits, '-' and '_', and never start or end with '-'.
//   - IP literals such as "0.0.0.0" are not hostnames.
func isValidHostname(name string) bool {
	if name == "" || len(name) > maxNameLen {
		return false
	}
	if _, err := netip.ParseAddr(name); err == nil {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if !isValidLabel(label) {
			return false
		}
	}
	return true
}

func isValidLabel(label string) bool {
	if len(label) == 0 || len(label) > maxLabelLen {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		if !isHostnameByte(label[i]) {
			return false
		}
	}
	return true
}

// isHostnameByte reports whether b may appear in a canonical (lowercase) label.
func isHostnameByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9') || b == '-' || b == '_'
}

// normalizeDomainName trims whitespace, removes any leading "*." or "." marker
// and returns the canonical DNS name. Plain lists use the markers to mean
// "this domain and everything below it", which subdomain matching already covers.
func normalizeDomainName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	return utils.CanonicalDNSName(name)
}

// stripLineBOM removes a UTF-8 byte order mark from the start of a line.
func stripLineBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// classifyLine reports whether a line is blank or a full-line comment.
func classifyLine(line string) (isEmpty, isComment bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true, false
	}
	return false, strings.HasPrefix(trimmed, "#")
}

// stripInlineComment drops everything from the first '#'.
func stripInlineComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}
