package utils

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain returns the eTLD+1 of name (e.g. "example.co.uk" for
// "ads.example.co.uk"). ok is false when the name is itself a public suffix
// or cannot be parsed.
func RegistrableDomain(name string) (root string, ok bool) {
	root, err := publicsuffix.EffectiveTLDPlusOne(CanonicalDNSName(name))
	if err != nil {
		return "", false
	}
	return root, true
}

// ParentDomains lists the proper parent suffixes of name, most specific first,
// stopping at the registrable domain. The name itself is never included.
//
//	ParentDomains("sub.ads.example.com") == ["ads.example.com", "example.com"]
//
// When no registrable domain can be derived the walk stops before the bare
// top-level label. Single-label names have no parents.
func ParentDomains(name string) []string {
	name = CanonicalDNSName(name)
	root, ok := RegistrableDomain(name)

	var parents []string
	rest := name
	for {
		i := strings.IndexByte(rest, '.')
		if i < 0 {
			break
		}
		rest = rest[i+1:]
		if ok {
			if len(rest) < len(root) {
				break
			}
		} else if !strings.Contains(rest, ".") {
			break
		}
		if rest == "" {
			break
		}
		parents = append(parents, rest)
	}
	return parents
}
