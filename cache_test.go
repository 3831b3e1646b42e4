package bcache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/blockcache/bcache"
	"github.com/blockcache/bcache/blockdev"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, n, hashSize, srp int) (*bcache.Cache, *blockdev.Memory) {
	t.Helper()
	dev := blockdev.NewMemory()
	cfg := bcache.Config{N: n, HashSize: hashSize, SRP: srp, VictimCacheBytes: 0, RecentOpsCapacity: 64}
	c, err := bcache.New(cfg, dev)
	require.NoError(t, err)
	return c, dev
}

// A cold read misses the device once; a second read of the same
// (dev,sector) while still cached must not reissue a device read.
func TestReadColdThenHit(t *testing.T) {
	c, dev := newTestCache(t, 4, 7, 0)

	ref1 := c.Read(1, 10, 0)
	require.Equal(t, 1, dev.Reads)
	c.Release(ref1)

	ref2 := c.Read(1, 10, 0)
	require.Equal(t, int32(1), ref2.Dev())
	require.Equal(t, uint64(10), ref2.Sector())
	require.Equal(t, 1, dev.Reads, "second read of a still-cached sector must not hit the device again")
	c.Release(ref2)
}

// With only N=2 buffers, a third distinct sector forces eviction of the
// least recently used one.
func TestEvictionWithTwoBuffers(t *testing.T) {
	c, _ := newTestCache(t, 2, 7, 0)

	r1 := c.Read(1, 1, 0)
	c.Release(r1)
	r2 := c.Read(1, 2, 0)
	c.Release(r2)

	snap := c.Snapshot()
	require.Len(t, snap, 2)

	r3 := c.Read(1, 3, 0)
	defer c.Release(r3)

	found := false
	for _, b := range c.Snapshot() {
		if b.Dev == 1 && b.Sector == 3 {
			found = true
		}
	}
	require.True(t, found)

	for _, b := range c.Snapshot() {
		require.False(t, b.Dev == 1 && b.Sector == 1, "LRU sector should have been evicted")
	}
}

// With N=6, SRP=3, once an inode occupies SRP buffers, further misses for
// that inode may only evict from within its own set, never from another
// inode's buffers.
func TestSRPQuotaConfinesEviction(t *testing.T) {
	c, _ := newTestCache(t, 6, 7, 3)

	// inode 100 claims 3 buffers.
	var refs []*bcache.BufRef
	for s := uint64(0); s < 3; s++ {
		ref := c.Read(1, s, 100)
		refs = append(refs, ref)
	}
	for _, ref := range refs {
		c.Release(ref)
	}
	require.Equal(t, 3, c.InodeResidency(1, 100))

	// inode 200 claims the remaining 3.
	var refs2 []*bcache.BufRef
	for s := uint64(10); s < 13; s++ {
		ref := c.Read(1, s, 200)
		refs2 = append(refs2, ref)
	}
	for _, ref := range refs2 {
		c.Release(ref)
	}
	require.Equal(t, 3, c.InodeResidency(1, 200))

	// A fourth sector for inode 100 must evict one of inode 100's own
	// buffers, never one of inode 200's.
	r := c.Read(1, 99, 100)
	c.Release(r)
	require.Equal(t, 3, c.InodeResidency(1, 100))
	require.Equal(t, 3, c.InodeResidency(1, 200))
}

// Two goroutines racing for the same (dev,sector) are mutually excluded —
// only one observes the buffer as a cold miss.
func TestMutualExclusionOnSameSector(t *testing.T) {
	c, dev := newTestCache(t, 4, 7, 0)
	dev.Seed(1, 5, []byte("hello"))

	var wg sync.WaitGroup
	start := make(chan struct{})
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			<-start
			ref := c.Read(1, 5, 0)
			time.Sleep(time.Millisecond)
			c.Release(ref)
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, dev.Reads, "concurrent readers of the same sector share one device read")
}

// Releasing a buffer moves it to the MRU end of the list.
func TestReleaseMovesToFront(t *testing.T) {
	c, _ := newTestCache(t, 3, 7, 0)

	r1 := c.Read(1, 1, 0)
	c.Release(r1)
	r2 := c.Read(1, 2, 0)
	c.Release(r2)
	r3 := c.Read(1, 3, 0)
	c.Release(r3)

	// Touch sector 1 again: it should become MRU.
	r1b := c.Read(1, 1, 0)
	c.Release(r1b)

	snap := c.Snapshot()
	require.Equal(t, uint64(1), snap[0].Sector, "most recently released sector should be at the MRU end")
}

// With N=1, evicting a dirty buffer flushes it to the device before the
// slot's identity changes. Write itself already persists synchronously,
// but deliberately leaves the buffer marked dirty until it is actually
// evicted, so the slot genuinely carries dirty state across the release
// and the flush-on-evict path is exercised rather than always skipped.
func TestDirtyEvictionFlushesFirst(t *testing.T) {
	c, dev := newTestCache(t, 1, 7, 0)

	ref := c.Read(1, 1, 0)
	copy(ref.Data(), []byte("dirty-payload"))
	c.Write(ref)
	require.Equal(t, 1, dev.Writes, "Write persists synchronously")
	c.Release(ref)

	snap := c.Snapshot()
	require.Len(t, snap, 1)
	require.True(t, snap[0].Dirty, "a released buffer must still be marked dirty until it is actually evicted")

	writesBefore := dev.Writes

	ref2 := c.Read(1, 2, 0)
	c.Release(ref2)

	require.Equal(t, writesBefore+1, dev.Writes, "evicting a still-dirty buffer must flush it to the device first")

	var got [bcache.SectorSize]byte
	require.NoError(t, dev.ReadSector(1, 1, got[:]))
	require.Equal(t, byte('d'), got[0])
}

func TestInvalidConfigRejected(t *testing.T) {
	dev := blockdev.NewMemory()
	_, err := bcache.New(bcache.Config{N: 0, HashSize: 1}, dev)
	require.Error(t, err)

	_, err = bcache.New(bcache.Config{N: 4, HashSize: 0}, dev)
	require.Error(t, err)

	_, err = bcache.New(bcache.Config{N: 4, HashSize: 1, SRP: -1}, dev)
	require.Error(t, err)
}

func TestRecentOpsRecordsActivity(t *testing.T) {
	c, _ := newTestCache(t, 4, 7, 0)
	ref := c.Read(1, 1, 0)
	c.Release(ref)

	ops := c.RecentOps()
	require.NotEmpty(t, ops)
	require.Equal(t, "release", ops[len(ops)-1].Op)
}
