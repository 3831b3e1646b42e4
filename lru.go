package bcache

// initLRU links all N buffers into a single doubly linked list in pool
// order. lruHead is the MRU end, lruTail the LRU end.
func (c *Cache) initLRU() {
	n := int32(len(c.bufs))
	for i := int32(0); i < n; i++ {
		b := &c.bufs[i]
		if i == 0 {
			b.lruPrev = none
		} else {
			b.lruPrev = i - 1
		}
		if i == n-1 {
			b.lruNext = none
		} else {
			b.lruNext = i + 1
		}
	}
	c.lruHead = 0
	c.lruTail = n - 1
}

// detachLRU removes idx from wherever it currently sits in the list.
func (c *Cache) detachLRU(idx int32) {
	b := &c.bufs[idx]
	if b.lruPrev != none {
		c.bufs[b.lruPrev].lruNext = b.lruNext
	} else {
		c.lruHead = b.lruNext
	}
	if b.lruNext != none {
		c.bufs[b.lruNext].lruPrev = b.lruPrev
	} else {
		c.lruTail = b.lruPrev
	}
	b.lruPrev, b.lruNext = none, none
}

// moveToFront detaches idx and reinserts it at the MRU end. Called on
// release; acquisition never moves a buffer, so a held buffer's position
// in the list is stable for as long as it is busy.
func (c *Cache) moveToFront(idx int32) {
	c.detachLRU(idx)
	b := &c.bufs[idx]
	b.lruNext = c.lruHead
	b.lruPrev = none
	if c.lruHead != none {
		c.bufs[c.lruHead].lruPrev = idx
	}
	c.lruHead = idx
	if c.lruTail == none {
		c.lruTail = idx
	}
}

// scanForVictim walks the list from the LRU end toward the MRU end,
// returning the first non-busy buffer. When filterInode is true, only
// buffers currently bearing (dev,inum) are considered — this is the
// within-inode eviction scan used once an inode has reached its residency
// quota. The scan re-walks the whole list rather than maintaining a
// separate per-inode index, which keeps the pool's only two views (LRU
// order, hash index) the sole source of truth.
func (c *Cache) scanForVictim(dev int32, inum uint64, filterInode bool) int32 {
	for idx := c.lruTail; idx != none; idx = c.bufs[idx].lruPrev {
		b := &c.bufs[idx]
		if filterInode && !(b.dev == dev && b.inum == inum) {
			continue
		}
		if !b.busy() {
			return idx
		}
	}
	return none
}

// firstInodeMember returns the first (LRU to MRU order) buffer currently
// bearing (dev,inum), busy or not. get's quota path uses it only to detect
// the case where the inode holds no buffer at all; the wait itself is on
// the shared exhaustion channel.
func (c *Cache) firstInodeMember(dev int32, inum uint64) int32 {
	for idx := c.lruTail; idx != none; idx = c.bufs[idx].lruPrev {
		b := &c.bufs[idx]
		if b.dev == dev && b.inum == inum {
			return idx
		}
	}
	return none
}

// countBlocks returns the number of buffers currently bearing (dev,inum).
func (c *Cache) countBlocks(dev int32, inum uint64) int {
	count := 0
	for i := range c.bufs {
		if c.bufs[i].dev == dev && c.bufs[i].inum == inum {
			count++
		}
	}
	return count
}
