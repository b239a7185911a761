package domain

import "fmt"

// RRType represents a DNS resource record type (e.g. A, AAAA, MX).
// See IANA DNS Parameters for assigned codes.
type RRType uint16

// DNS Resource Record Type constants
const (
	RRTypeA     RRType = 1   // A - IPv4 address
	RRTypeNS    RRType = 2   // NS - Name server
	RRTypeCNAME RRType = 5   // CNAME - Canonical name
	RRTypeSOA   RRType = 6   // SOA - Start of authority
	RRTypePTR   RRType = 12  // PTR - Pointer
	RRTypeMX    RRType = 15  // MX - Mail exchange
	RRTypeTXT   RRType = 16  // TXT - Text
	RRTypeAAAA  RRType = 28  // AAAA - IPv6 address
	RRTypeSRV   RRType = 33  // SRV - Service
	RRTypeHTTPS RRType = 65  // HTTPS - HTTPS binding
	RRTypeANY   RRType = 255 // ANY - Any type (query only)
)

var rrTypeNames = map[RRType]string{
	RRTypeA:     "A",
	RRTypeNS:    "NS",
	RRTypeCNAME: "CNAME",
	RRTypeSOA:   "SOA",
	RRTypePTR:   "PTR",
	RRTypeMX:    "MX",
	RRTypeTXT:   "TXT",
	RRTypeAAAA:  "AAAA",
	RRTypeSRV:   "SRV",
	RRTypeHTTPS: "HTTPS",
	RRTypeANY:   "ANY",
}

// IsAddress reports whether the type carries a host address (A or AAAA).
// Only address questions receive a null-address answer when blocked.
func (t RRType) IsAddress() bool {
	return t == RRTypeA || t == RRTypeAAAA
}

// String returns the textual representation of the RRType.
// For unnamed types, it returns "TYPE<value>" as in RFC 3597 presentation format.
func (t RRType) String() string {
	if name, ok := rrTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TYPE%d", t)
}

// RRTypeFromString converts a record type string to its corresponding RRType value.
// Unknown names return 0.
func RRTypeFromString(s string) RRType {
	for t, name := range rrTypeNames {
		if name == s {
			return t
		}
	}
	return 0
}
