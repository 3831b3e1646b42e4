package bcache

import "github.com/blockcache/bcache/internal/blog"

// none is the sentinel index value for "not linked" in both the LRU list
// and a hash chain. Buffers are addressed by slot index into Cache.bufs
// rather than by pointer, so the three views over the same fixed array
// (pool, LRU list, hash chain) stay mechanically checkable instead of
// alias-prone.
const none int32 = -1

// UnassignedDev is the sentinel dev id carried by a buffer that has never
// been assigned an identity. A buffer being reassigned keeps its old dev
// until the new identity is written; it never returns to this value.
const UnassignedDev int32 = -1

// flag is the BUSY/VALID/DIRTY state of a buffer, kept as a bitmask rather
// than three separate bools since the three states are independent and
// checked together in hot paths.
type flag uint8

const (
	flagBusy flag = 1 << iota
	flagValid
	flagDirty
)

// buffer is one slot in the fixed pool. It never moves in memory and is
// never destroyed; only its identity and flags are ever reassigned.
type buffer struct {
	dev    int32
	sector uint64
	inum   uint64
	flags  flag
	gen    uint64 // bumped every time flagBusy transitions false->true
	data   [SectorSize]byte

	lruPrev, lruNext   int32
	hashPrev, hashNext int32
}

func (b *buffer) busy() bool  { return b.flags&flagBusy != 0 }
func (b *buffer) valid() bool { return b.flags&flagValid != 0 }
func (b *buffer) dirty() bool { return b.flags&flagDirty != 0 }

func (b *buffer) assigned() bool { return b.dev != UnassignedDev }

func (b *buffer) identifies(dev int32, sector uint64) bool {
	return b.dev == dev && b.sector == sector
}

// BufRef is the lease token handed out by Read and consumed by Write and
// Release. It grants its holder exclusive, lock-free access to the
// underlying 512-byte payload for as long as the lease is held — the
// buffer's BUSY flag is the lease. Write or Release on a reference that has
// already been released panics, and so does any use of the reference once
// its buffer has been acquired again (the generation no longer matches).
// The reference is not tied to a goroutine, and Data, Dev, Sector or Inum
// on a released buffer that nobody has acquired since is not detected.
type BufRef struct {
	c   *Cache
	idx int32
	gen uint64
}

func (r *BufRef) buffer() *buffer {
	b := &r.c.bufs[r.idx]
	if b.gen != r.gen {
		blog.Crit("stale buffer reference used after release", "dev", b.dev, "sector", b.sector)
	}
	return b
}

// Data returns the buffer's 512-byte payload. The slice is valid until the
// matching Release call and must not be retained past it.
func (r *BufRef) Data() []byte {
	return r.buffer().data[:]
}

// Dev returns the device id this buffer is currently bound to.
func (r *BufRef) Dev() int32 { return r.buffer().dev }

// Sector returns the sector number this buffer is currently bound to.
func (r *BufRef) Sector() uint64 { return r.buffer().sector }

// Inum returns the inode number this buffer is currently associated with
// (0 for filesystem metadata).
func (r *BufRef) Inum() uint64 { return r.buffer().inum }
