package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/dns-sinkhole/internal/dns/common/clock"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
	"github.com/haukened/dns-sinkhole/internal/dns/repos/blocklist"
)

// Layout:
//
//	hostnames                   hostname           -> uint64 number of entries naming it
//	categories/<category>       ip \x00 hostname   -> uint64 id | int64 added_at
//	meta                        "entries"          -> uint64 total entries
//	                            "updated"          -> int64 unix seconds of the last insert
var (
	bucketHostnames  = []byte("hostnames")
	bucketCategories = []byte("categories")
	bucketMeta       = []byte("meta")

	metaEntries = []byte("entries")
	metaUpdated = []byte("updated")
)

const keySep = 0x00

// ctxCheckEvery bounds how many entries are written between context checks.
const ctxCheckEvery = 1024

var errStopVisit = errors.New("stop visit")

// boltStore implements blocklist.Store using bbolt.
type boltStore struct {
	db    *bbolt.DB
	clock clock.Clock
}

// bucketCreator is the subset of *bbolt.Tx used to create buckets. It is an
// interface so tests can inject failures.
type bucketCreator interface {
	CreateBucketIfNotExists(name []byte) (*bbolt.Bucket, error)
}

var ensureBucketsFn = ensureBuckets

func ensureBuckets(tx bucketCreator) error {
	for _, name := range [][]byte{bucketHostnames, bucketCategories, bucketMeta} {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return fmt.Errorf("create bucket %s: %w", name, err)
		}
	}
	return nil
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
// clk stamps insert times; nil uses the wall clock.
func New(path string, clk clock.Clock) (blocklist.Store, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: err}
	}
	if err := db.Update(func(tx *bbolt.Tx) error { return ensureBucketsFn(tx) }); err != nil {
		_ = db.Close()
		return nil, &domain.StoreError{Op: "open", Err: err}
	}
	return &boltStore{db: db, clock: clk}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) Exists(ctx context.Context, hostname string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &domain.StoreError{Op: "exists", Err: err}
	}
	var present bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketHostnames)
		if b == nil {
			return nil
		}
		present = b.Get([]byte(hostname)) != nil
		return nil
	})
	if err != nil {
		return false, &domain.StoreError{Op: "exists", Err: err}
	}
	return present, nil
}

func (s *boltStore) ListByCategory(ctx context.Context, category domain.Category) ([]domain.HostKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StoreError{Op: "list_by_category", Err: err}
	}
	var out []domain.HostKey
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := categoryBucket(tx, category)
		if b == nil {
			return nil
		}
		out = make([]domain.HostKey, 0, b.Stats().KeyN)
		return b.ForEach(func(k, _ []byte) error {
			key, ok := decodeHostKey(k)
			if ok {
				out = append(out, key)
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.StoreError{Op: "list_by_category", Err: err}
	}
	return out, nil
}

// BulkInsert writes entries in a single transaction. Pairs already stored under
// the same category are skipped. IDs are assigned in place on the caller's slice.
func (s *boltStore) BulkInsert(ctx context.Context, entries []domain.HostEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, &domain.StoreError{Op: "bulk_insert", Err: err}
	}
	now := s.clock.Now()
	ids := make([]uint64, len(entries))
	inserted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		hosts := tx.Bucket(bucketHostnames)
		cats := tx.Bucket(bucketCategories)
		meta := tx.Bucket(bucketMeta)
		if hosts == nil || cats == nil || meta == nil {
			return fmt.Errorf("blocklist buckets missing")
		}
		inserted = 0
		for i, e := range entries {
			if i%ctxCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if err := e.Validate(); err != nil {
				return err
			}
			cb, err := cats.CreateBucketIfNotExists([]byte(e.Category))
			if err != nil {
				return err
			}
			key := encodeHostKey(e.Key())
			if cb.Get(key) != nil {
				continue
			}
			id, err := meta.NextSequence()
			if err != nil {
				return err
			}
			addedAt := e.AddedAt
			if addedAt.IsZero() {
				addedAt = now
			}
			if err := cb.Put(key, encodeEntryValue(id, addedAt)); err != nil {
				return err
			}
			if err := hosts.Put([]byte(e.Hostname), putUint64(getUint64(hosts.Get([]byte(e.Hostname)))+1)); err != nil {
				return err
			}
			ids[i] = id
			inserted++
		}
		if err := meta.Put(metaEntries, putUint64(getUint64(meta.Get(metaEntries))+uint64(inserted))); err != nil {
			return err
		}
		return meta.Put(metaUpdated, putUint64(uint64(now.Unix())))
	})
	if err != nil {
		return 0, &domain.StoreError{Op: "bulk_insert", Err: err}
	}
	for i := range entries {
		if ids[i] != 0 {
			entries[i].ID = ids[i]
		}
	}
	return inserted, nil
}

func (s *boltStore) Hostnames(ctx context.Context, visit func(string) bool) error {
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketHostnames)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !visit(string(k)) {
				return errStopVisit
			}
			return nil
		})
	})
	if err != nil && !errors.Is(err, errStopVisit) {
		return &domain.StoreError{Op: "hostnames", Err: err}
	}
	return nil
}

func (s *boltStore) Stats(ctx context.Context) (blocklist.StoreStats, error) {
	st := blocklist.StoreStats{Categories: map[string]uint64{}}
	if err := ctx.Err(); err != nil {
		return st, &domain.StoreError{Op: "stats", Err: err}
	}
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketHostnames); b != nil {
			st.Hostnames = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketCategories); b != nil {
			if err := b.ForEachBucket(func(name []byte) error {
				st.Categories[string(name)] = uint64(b.Bucket(name).Stats().KeyN)
				return nil
			}); err != nil {
				return err
			}
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			st.Entries = getUint64(b.Get(metaEntries))
			st.UpdatedUnix = int64(getUint64(b.Get(metaUpdated)))
		}
		return nil
	})
	if err != nil {
		return st, &domain.StoreError{Op: "stats", Err: err}
	}
	return st, nil
}

func categoryBucket(tx *bbolt.Tx, category domain.Category) *bbolt.Bucket {
	cats := tx.Bucket(bucketCategories)
	if cats == nil {
		return nil
	}
	return cats.Bucket([]byte(category))
}

func encodeHostKey(k domain.HostKey) []byte {
	buf := make([]byte, 0, len(k.IP)+1+len(k.Hostname))
	buf = append(buf, k.IP...)
	buf = append(buf, keySep)
	return append(buf, k.Hostname...)
}

func decodeHostKey(b []byte) (domain.HostKey, bool) {
	i := bytes.IndexByte(b, keySep)
	if i < 0 {
		return domain.HostKey{}, false
	}
	return domain.HostKey{IP: string(b[:i]), Hostname: string(b[i+1:])}, true
}

func encodeEntryValue(id uint64, addedAt time.Time) []byte {
	v := make([]byte, 16)
	binary.BigEndian.PutUint64(v[0:8], id)
	binary.BigEndian.PutUint64(v[8:16], uint64(addedAt.Unix()))
	return v
}

func putUint64(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func getUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

var _ blocklist.Store = (*boltStore)(nil)
