package bloom

import (
	"math"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/dns-sinkhole/internal/dns/repos/blocklist"
)

// defaultFPRate replaces configured rates outside (0, 1).
const defaultFPRate = 0.01

type sizer struct{}

// NewSizer returns a BloomSizer backed by bitsbloom.EstimateParameters.
// An empty blocklist is sized as if it held one name, and the hash count
// is capped at 255.
func NewSizer() blocklist.BloomSizer { return sizer{} }

func (sizer) Size(n uint64, p float64) (uint64, uint8) {
	if p <= 0 || p >= 1 || math.IsNaN(p) {
		p = defaultFPRate
	}
	bits, hashes := bitsbloom.EstimateParameters(uint(max(n, 1)), p)
	return uint64(max(bits, 1)), uint8(min(max(hashes, 1), math.MaxUint8))
}
