package blocklist

// CacheStats reports lightweight cache metrics.
// All fields are best-effort snapshots and may be updated concurrently.
type CacheStats struct {
	Capacity  int    `json:"capacity"`  // configured capacity (0 for unbounded, -1 for disabled)
	Size      int    `json:"size"`      // current number of entries
	Hits      uint64 `json:"hits"`      // total cache hits since construction
	Misses    uint64 `json:"misses"`    // total cache misses since construction
	Evictions uint64 `json:"evictions"` // total evictions since construction
}

// StoreStats reports lightweight store metrics and metadata.
type StoreStats struct {
	Entries     uint64            `json:"entries"`      // total HostEntry rows
	Hostnames   uint64            `json:"hostnames"`    // distinct hostnames
	Categories  map[string]uint64 `json:"categories"`   // entries per category
	UpdatedUnix int64             `json:"updated_unix"` // last bulk insert, 0 if never
}

// RepoStats exposes repository-level counters and underlying store stats.
type RepoStats struct {
	Cache           CacheStats `json:"cache"`
	Store           StoreStats `json:"store"`
	StoreLookups    uint64     `json:"store_lookups"`
	StoreErrors     uint64     `json:"store_errors"`
	BloomSkips      uint64     `json:"bloom_skips"`
	LastInvalidated int64      `json:"last_invalidated"` // seconds since epoch, 0 if never
}
