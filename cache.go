// Package bcache implements a kernel-style disk block buffer cache: a
// fixed pool of 512-byte buffers shared between an LRU eviction list, a
// hash index for O(1) lookup by (dev,sector), and a per-inode residency
// quota (SRP), all guarded by a single lock. Buffers are addressed by slot
// index rather than pointer, so the pool, its LRU list, and its hash index
// are three views over one fixed array instead of three independently
// allocated structures.
package bcache

import (
	"sync"

	"github.com/blockcache/bcache/internal/blog"
	"github.com/blockcache/bcache/internal/bmetrics"
	"github.com/sasha-s/go-deadlock"
)

// Cache is the access manager plus the buffer pool, LRU list, and hash
// index it coordinates. The zero value is not usable; construct one with
// New.
type Cache struct {
	cfg    Config
	device Device

	// mu is the single lock guarding every link field, flag, and identity
	// field of every buffer, and the hashHeads/lruHead/lruTail
	// bookkeeping. It never guards the 512-byte data payload once a
	// buffer is BUSY — that's the lease's job. Built on sasha-s/go-deadlock
	// (a drop-in sync.Mutex substitute) rather than sync.Mutex so that the
	// single-global-lock design gets held-too-long / lock-order detection
	// for free — useful given get()'s sleep-while-holding-the-lock pattern
	// below.
	mu deadlock.Mutex

	bufs      []buffer
	hashHeads []int32
	lruHead   int32
	lruTail   int32

	// conds[i] is the wait channel for buffer i. A buffer's own slot
	// index is a stable address for its entire (eternal) lifetime, so it
	// is the natural condition variable key.
	conds []*sync.Cond

	// exhausted is the sentinel wait channel get() sleeps on, instead of
	// panicking, when no buffer is evictable, and also when the SRP quota
	// leaves every member of an inode's set busy (see DESIGN.md for why a
	// single shared channel is used here instead of one per inode).
	exhausted *sync.Cond

	victim *victimCache
	ops    *opLog
}

// New constructs a Cache with cfg.N buffers, all unassigned, and wires it
// to the given Device. The device is the only collaborator the cache talks
// to outside of its own lock.
func New(cfg Config, device Device) (*Cache, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Cache{
		cfg:       cfg,
		device:    device,
		bufs:      make([]buffer, cfg.N),
		hashHeads: make([]int32, cfg.HashSize),
		conds:     make([]*sync.Cond, cfg.N),
		victim:    newVictimCache(cfg.VictimCacheBytes),
		ops:       newOpLog(cfg.RecentOpsCapacity),
	}
	for i := range c.hashHeads {
		c.hashHeads[i] = none
	}
	for i := range c.bufs {
		c.bufs[i].dev = UnassignedDev
		c.bufs[i].hashPrev, c.bufs[i].hashNext = none, none
		c.conds[i] = sync.NewCond(&c.mu)
	}
	c.initLRU()
	c.exhausted = sync.NewCond(&c.mu)
	blog.Info("bcache initialized", "buffers", cfg.N, "hashsize", cfg.HashSize, "srp", cfg.SRP)
	return c, nil
}

func (c *Cache) ref(idx int32) *BufRef {
	return &BufRef{c: c, idx: idx, gen: c.bufs[idx].gen}
}

// get is the heart of the system: it returns a BUSY buffer bound to
// (dev,sector,inum), blocking until one is available.
func (c *Cache) get(dev int32, sector uint64, inum uint64) *BufRef {
	if dev == UnassignedDev {
		blog.Crit("get called with unassigned device sentinel")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		// Step 1: lookup by identity.
		if idx := c.lookupChain(dev, sector); idx != none {
			b := &c.bufs[idx]
			if !b.busy() {
				b.flags |= flagBusy
				b.gen++
				bmetrics.Hits.Inc()
				c.ops.record("hit", dev, sector, inum)
				return c.ref(idx)
			}
			bmetrics.Waiters.Inc()
			c.conds[idx].Wait()
			bmetrics.Waiters.Dec()
			continue // identity may have changed across the sleep; restart.
		}

		bmetrics.Misses.Inc()

		// Step 2: decide whether the SRP quota applies.
		quotaActive := c.cfg.SRP >= 3 && inum != 0
		counter := 0
		if quotaActive {
			counter = c.countBlocks(dev, inum)
		}

		if !quotaActive || counter < c.cfg.SRP {
			// Case A: any non-busy buffer is fair game.
			if idx := c.scanForVictim(dev, inum, false); idx != none {
				c.ops.record("evict", dev, sector, inum)
				return c.evictAndInstall(idx, dev, sector, inum)
			}
			// Exhaustion: sleep and retry rather than panic.
			bmetrics.PoolExhausted.Inc()
			bmetrics.Waiters.Inc()
			c.exhausted.Wait()
			bmetrics.Waiters.Dec()
			continue
		}

		// Case B: quota exceeded; evict only from within this inode's
		// own buffers.
		bmetrics.QuotaBlocked.Inc()
		if idx := c.scanForVictim(dev, inum, true); idx != none {
			c.ops.record("evict-quota", dev, sector, inum)
			return c.evictAndInstall(idx, dev, sector, inum)
		}
		// Every member of the inode's set is busy. Wait on the shared
		// exhaustion channel rather than on one member's own channel
		// (see DESIGN.md: every release broadcasts it).
		if c.firstInodeMember(dev, inum) == none {
			// Quota said members exist; if the pool genuinely holds
			// none (shouldn't happen), count it as pool exhaustion.
			bmetrics.PoolExhausted.Inc()
		}
		bmetrics.Waiters.Inc()
		c.exhausted.Wait()
		bmetrics.Waiters.Dec()
	}
}

// evictAndInstall claims buffer idx, flushes it to the device first if it
// is still dirty (Write sets DIRTY but leaves it set — see DESIGN.md),
// reassigns its identity, and re-links it into the hash index. Must be
// called with c.mu held; it temporarily releases the lock around the
// device write, since a device access may block for an arbitrarily long
// time and must never be made under the pool's own lock.
func (c *Cache) evictAndInstall(idx int32, dev int32, sector uint64, inum uint64) *BufRef {
	b := &c.bufs[idx]

	wasAssigned := b.assigned()
	oldDev, oldSector := b.dev, b.sector
	needFlush := wasAssigned && b.dirty()
	stashClean := wasAssigned && !b.dirty() && b.valid()

	// Claim the buffer before letting go of the lock so no other
	// goroutine can observe it as a free victim or touch its flags.
	b.flags |= flagBusy
	if wasAssigned {
		c.detachHash(idx)
	}
	if stashClean {
		c.victim.stash(oldDev, oldSector, b.data[:])
	}

	if needFlush {
		data := b.data // copy: safe, b.data is not touched by anyone else while BUSY
		c.mu.Unlock()
		if err := c.device.WriteSector(oldDev, oldSector, data[:]); err != nil {
			c.mu.Lock()
			blog.Crit("device write failed while flushing dirty buffer on eviction", "dev", oldDev, "sector", oldSector, "err", err)
		}
		bmetrics.DirtyFlushes.Inc()
		c.mu.Lock()
	}

	b.dev, b.sector, b.inum = dev, sector, inum
	b.flags = flagBusy
	b.gen++
	c.attachHash(idx)
	bmetrics.Evictions.Inc()
	blog.Debug("evicted buffer", "oldDev", oldDev, "oldSector", oldSector, "dev", dev, "sector", sector, "inum", inum)
	return c.ref(idx)
}

// Read returns a BUSY buffer holding the contents of (dev,sector). inum is
// 0 for filesystem metadata or a positive inode number, and only affects
// eviction policy (the SRP quota), never the identity of the returned
// buffer. If the buffer is not already valid, the device is consulted —
// first the victim cache, then Device.ReadSector — before Read returns.
func (c *Cache) Read(dev int32, sector uint64, inum uint64) *BufRef {
	ref := c.get(dev, sector, inum)
	b := &c.bufs[ref.idx]
	if !b.valid() {
		if !c.victim.fetch(dev, sector, b.data[:]) {
			if err := c.device.ReadSector(dev, sector, b.data[:]); err != nil {
				blog.Crit("device read failed", "dev", dev, "sector", sector, "err", err)
			}
		} else {
			bmetrics.VictimHits.Inc()
		}
		c.mu.Lock()
		b.flags |= flagValid
		c.mu.Unlock()
	}
	return ref
}

// Write marks ref's buffer dirty and synchronously persists it through the
// device before returning. The DIRTY flag itself is left set: it is only
// cleared once the buffer is actually flushed on eviction
// (evictAndInstall), so that a write followed immediately by release and
// eviction genuinely exercises the flush-before-reassignment path instead
// of always finding a clean buffer. ref must currently be BUSY; calling
// Write on a released or foreign reference is a programmer error and is
// fatal.
func (c *Cache) Write(ref *BufRef) {
	c.mu.Lock()
	b := ref.buffer()
	if !b.busy() {
		c.mu.Unlock()
		blog.Crit("write: buffer not busy", "dev", b.dev, "sector", b.sector)
	}
	b.flags |= flagDirty
	c.mu.Unlock()

	if err := c.device.WriteSector(b.dev, b.sector, b.data[:]); err != nil {
		blog.Crit("device write failed", "dev", b.dev, "sector", b.sector, "err", err)
	}
	c.victim.drop(b.dev, b.sector)
}

// Release returns ref to the pool: the buffer becomes MRU, BUSY is
// cleared, and any goroutine sleeping on it (or on the pool-exhaustion
// channel) is woken. ref must not be used after Release returns. Hash
// index maintenance is deliberately not performed here — a buffer's
// identity, and therefore its hash bucket, only ever changes when get()'s
// eviction path reassigns it, never on release.
func (c *Cache) Release(ref *BufRef) {
	c.mu.Lock()
	b := ref.buffer()
	if !b.busy() {
		c.mu.Unlock()
		blog.Crit("release: buffer not busy", "dev", b.dev, "sector", b.sector)
	}
	idx := ref.idx
	c.moveToFront(idx)
	b.flags &^= flagBusy
	dev, sector, inum := b.dev, b.sector, b.inum
	c.ops.record("release", dev, sector, inum)
	c.mu.Unlock()

	c.conds[idx].Broadcast()
	c.exhausted.Broadcast()
}

// InodeResidency reports how many buffers currently bear (dev,inum), the
// public counterpart of the counter the SRP quota check uses internally.
func (c *Cache) InodeResidency(dev int32, inum uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countBlocks(dev, inum)
}

// BufferIdentity is one row of a Cache.Snapshot() result.
type BufferIdentity struct {
	Dev    int32
	Sector uint64
	Inum   uint64
	Busy   bool
	Valid  bool
	Dirty  bool
}

// Snapshot returns every buffer's identity and flags, ordered MRU first.
func (c *Cache) Snapshot() []BufferIdentity {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]BufferIdentity, 0, len(c.bufs))
	for idx := c.lruHead; idx != none; idx = c.bufs[idx].lruNext {
		b := &c.bufs[idx]
		out = append(out, BufferIdentity{
			Dev: b.dev, Sector: b.sector, Inum: b.inum,
			Busy: b.busy(), Valid: b.valid(), Dirty: b.dirty(),
		})
	}
	return out
}

// RecentOps returns the diagnostic operation ring, oldest first.
func (c *Cache) RecentOps() []opRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops.recent()
}
