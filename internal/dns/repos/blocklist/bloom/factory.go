// Package bloom backs the blocklist's negative-lookup filter with
// bits-and-blooms.
package bloom

import (
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/dns-sinkhole/internal/dns/repos/blocklist"
)

type factory struct {
	sizer blocklist.BloomSizer
}

// NewFactory returns a BloomFactory whose filters are sized for the given
// hostname count and false-positive rate.
func NewFactory() blocklist.BloomFactory { return factory{sizer: NewSizer()} }

func (f factory) New(capacity uint64, fpRate float64) blocklist.BloomFilter {
	m, k := f.sizer.Size(capacity, fpRate)
	return &hostSet{bits: bitsbloom.New(uint(m), uint(k))}
}

// hostSet holds canonical hostnames. Lookups may overlap a rebuild that is
// still adding keys.
type hostSet struct {
	mu   sync.RWMutex
	bits *bitsbloom.BloomFilter
}

func (s *hostSet) Add(host []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bits.Add(host)
}

func (s *hostSet) MightContain(host []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bits.Test(host)
}
