package utils

import "strings"

// CanonicalDNSName is the key form used by the store, the Bloom filter and
// the decision cache: lower case, no surrounding space, no trailing dots.
// "Ads.DoubleClick.NET." and "ads.doubleclick.net" map to the same key.
func CanonicalDNSName(name string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(name)), ".")
}
