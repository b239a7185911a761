package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/dns-sinkhole/internal/dns/common/clock"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
	"github.com/haukened/dns-sinkhole/internal/dns/repos/blocklist"
)

func tempDB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "bl.db")
}

func openStore(t *testing.T, clk clock.Clock) (blocklist.Store, *boltStore) {
	t.Helper()
	dbPath := tempDB(t)
	st, err := New(dbPath, clk)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(); _ = os.Remove(dbPath) })
	return st, st.(*boltStore)
}

func entry(t *testing.T, ip, host string, cat domain.Category) domain.HostEntry {
	t.Helper()
	e, err := domain.NewHostEntry(ip, host, cat, time.Time{})
	require.NoError(t, err)
	return e
}

func TestBoltStore_BulkInsertAndExists(t *testing.T) {
	clk := &clock.MockClock{CurrentTime: time.Unix(1723551000, 0).UTC()}
	st, _ := openStore(t, clk)
	ctx := context.Background()

	// empty DB -> no match
	ok, err := st.Exists(ctx, "doubleclick.net")
	require.NoError(t, err)
	assert.False(t, ok)

	entries := []domain.HostEntry{
		entry(t, "0.0.0.0", "doubleclick.net", domain.CategoryAdwareMalware),
		entry(t, "0.0.0.0", "tracker1.example", domain.CategoryPorn),
		entry(t, "0.0.0.0", "tracker2.example", domain.CategoryPorn),
	}
	n, err := st.BulkInsert(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	for i, e := range entries {
		assert.NotZero(t, e.ID, "entry %d should have an id", i)
	}
	assert.NotEqual(t, entries[0].ID, entries[1].ID)

	for _, h := range []string{"doubleclick.net", "tracker1.example", "tracker2.example"} {
		ok, err := st.Exists(ctx, h)
		require.NoError(t, err)
		assert.True(t, ok, h)
	}
	ok, err = st.Exists(ctx, "example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.Entries)
	assert.Equal(t, uint64(3), stats.Hostnames)
	assert.Equal(t, uint64(2), stats.Categories[string(domain.CategoryPorn)])
	assert.Equal(t, uint64(1), stats.Categories[string(domain.CategoryAdwareMalware)])
	assert.Equal(t, int64(1723551000), stats.UpdatedUnix)
}

func TestBoltStore_SameHostnameAcrossCategories(t *testing.T) {
	st, _ := openStore(t, nil)
	ctx := context.Background()

	n, err := st.BulkInsert(ctx, []domain.HostEntry{
		entry(t, "0.0.0.0", "facebook.com", domain.CategorySocial),
		entry(t, "0.0.0.0", "facebook.com", domain.CategoryFakeNews),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Entries)
	assert.Equal(t, uint64(1), stats.Hostnames)
}

func TestBoltStore_BulkInsertSkipsExistingPairs(t *testing.T) {
	st, _ := openStore(t, nil)
	ctx := context.Background()

	first := []domain.HostEntry{entry(t, "0.0.0.0", "a.example", domain.CategoryGambling)}
	n, err := st.BulkInsert(ctx, first)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	again := []domain.HostEntry{
		entry(t, "0.0.0.0", "a.example", domain.CategoryGambling),
		entry(t, "127.0.0.1", "a.example", domain.CategoryGambling),
		entry(t, "127.0.0.1", "a.example", domain.CategoryGambling),
	}
	n, err = st.BulkInsert(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the new ip pair is written once")
	assert.Zero(t, again[0].ID)
	assert.NotZero(t, again[1].ID)
}

func TestBoltStore_ListByCategory(t *testing.T) {
	st, _ := openStore(t, nil)
	ctx := context.Background()

	keys, err := st.ListByCategory(ctx, domain.CategoryPorn)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = st.BulkInsert(ctx, []domain.HostEntry{
		entry(t, "0.0.0.0", "tracker1.example", domain.CategoryPorn),
		entry(t, "127.0.0.1", "tracker2.example", domain.CategoryPorn),
		entry(t, "0.0.0.0", "other.example", domain.CategorySocial),
	})
	require.NoError(t, err)

	keys, err = st.ListByCategory(ctx, domain.CategoryPorn)
	require.NoError(t, err)
	sort.Slice(keys, func(i, j int) bool { return keys[i].Hostname < keys[j].Hostname })
	assert.Equal(t, []domain.HostKey{
		{IP: "0.0.0.0", Hostname: "tracker1.example"},
		{IP: "127.0.0.1", Hostname: "tracker2.example"},
	}, keys)
}

func TestBoltStore_BulkInsertIsAtomic(t *testing.T) {
	st, _ := openStore(t, nil)
	ctx := context.Background()

	bad := []domain.HostEntry{
		entry(t, "0.0.0.0", "good.example", domain.CategoryPorn),
		{IP: "not-an-ip", Hostname: "bad.example", Category: domain.CategoryPorn},
	}
	n, err := st.BulkInsert(ctx, bad)
	assert.Equal(t, 0, n)
	var se *domain.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "bulk_insert", se.Op)

	ok, err := st.Exists(ctx, "good.example")
	require.NoError(t, err)
	assert.False(t, ok, "a failed batch must not leave partial rows")
}

func TestBoltStore_CancelledContext(t *testing.T) {
	st, _ := openStore(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.Exists(ctx, "x.example")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = st.BulkInsert(ctx, []domain.HostEntry{entry(t, "0.0.0.0", "x.example", domain.CategoryPorn)})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = st.ListByCategory(ctx, domain.CategoryPorn)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = st.Stats(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	n, err := st.BulkInsert(ctx, nil)
	assert.NoError(t, err, "empty batches are a no-op")
	assert.Zero(t, n)
}

func TestBoltStore_Hostnames(t *testing.T) {
	st, _ := openStore(t, nil)
	ctx := context.Background()
	_, err := st.BulkInsert(ctx, []domain.HostEntry{
		entry(t, "0.0.0.0", "a.example", domain.CategoryPorn),
		entry(t, "0.0.0.0", "b.example", domain.CategoryPorn),
		entry(t, "0.0.0.0", "a.example", domain.CategorySocial),
	})
	require.NoError(t, err)

	var seen []string
	require.NoError(t, st.Hostnames(ctx, func(h string) bool { seen = append(seen, h); return true }))
	assert.Equal(t, []string{"a.example", "b.example"}, seen)

	seen = nil
	require.NoError(t, st.Hostnames(ctx, func(h string) bool { seen = append(seen, h); return false }))
	assert.Len(t, seen, 1)
}

func TestBoltStore_StoredValueLayout(t *testing.T) {
	clk := &clock.MockClock{CurrentTime: time.Unix(1700000000, 0).UTC()}
	st, bs := openStore(t, clk)
	e := entry(t, "0.0.0.0", "tracker1.example", domain.CategoryPorn)
	_, err := st.BulkInsert(context.Background(), []domain.HostEntry{e})
	require.NoError(t, err)

	require.NoError(t, bs.db.View(func(tx *bbolt.Tx) error {
		v := categoryBucket(tx, domain.CategoryPorn).Get(encodeHostKey(e.Key()))
		require.Len(t, v, 16)
		assert.Equal(t, uint64(1), binary.BigEndian.Uint64(v[0:8]))
		assert.Equal(t, uint64(1700000000), binary.BigEndian.Uint64(v[8:16]))
		return nil
	}))
}

func TestDecodeHostKey(t *testing.T) {
	k := domain.HostKey{IP: "::1", Hostname: "ip6.example"}
	got, ok := decodeHostKey(encodeHostKey(k))
	assert.True(t, ok)
	assert.Equal(t, k, got)

	_, ok = decodeHostKey([]byte("no-separator"))
	assert.False(t, ok)
}

type fakeBucketCreator struct{ errs map[string]error }

func (f fakeBucketCreator) CreateBucketIfNotExists(name []byte) (*bbolt.Bucket, error) {
	if err := f.errs[string(name)]; err != nil {
		return nil, err
	}
	return nil, nil
}

type assertErr struct{}

func (assertErr) Error() string { return "assert error" }

// Test the error paths for bucket creation by temporarily replacing ensureBucketsFn.
func TestNew_EnsureBucketsErrors(t *testing.T) {
	for _, fail := range [][]byte{bucketHostnames, bucketCategories, bucketMeta} {
		t.Run(string(fail), func(t *testing.T) {
			old := ensureBucketsFn
			ensureBucketsFn = func(tx bucketCreator) error {
				return ensureBuckets(fakeBucketCreator{errs: map[string]error{string(fail): assertErr{}}})
			}
			defer func() { ensureBucketsFn = old }()

			st, err := New(tempDB(t), nil)
			assert.Nil(t, st)
			var se *domain.StoreError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, "open", se.Op)
		})
	}
}

// Ensure New returns an error when the DB file cannot be opened (non-existent parent dir).
func TestNew_OpenError(t *testing.T) {
	badPath := filepath.Join(t.TempDir(), "no-such-dir", "bl.db")
	st, err := New(badPath, nil)
	if err == nil || st != nil {
		t.Fatalf("expected New to fail when parent directory does not exist")
	}
}

func TestBoltStore_ReopenKeepsData(t *testing.T) {
	dbPath := tempDB(t)
	st, err := New(dbPath, nil)
	require.NoError(t, err)
	_, err = st.BulkInsert(context.Background(), []domain.HostEntry{entry(t, "0.0.0.0", "persist.example", domain.CategoryPorn)})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = New(dbPath, nil)
	require.NoError(t, err)
	defer st.Close()
	ok, err := st.Exists(context.Background(), "persist.example")
	require.NoError(t, err)
	assert.True(t, ok)
}
