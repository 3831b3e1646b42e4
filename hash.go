package bcache

// hashIndex computes the bucket for (dev,sector) with a Bob Jenkins style
// integer mix, widened to uint64 to give it room to mix the full sector
// range without wrapping.
func hashIndex(dev int32, sector uint64, size int) int {
	key := uint64(uint32(dev)) + sector
	key = (key << 15) - key - 1
	key = key ^ (key >> 12)
	key = key + (key << 2)
	key = key ^ (key >> 4)
	key = (key + (key << 3)) + (key << 11)
	key = key ^ (key >> 16)
	return int(key % uint64(size))
}

// detachHash removes buffer idx from its current hash chain, repairing its
// neighbors, and clears its hash links. Must be called while the buffer's
// (dev,sector) identity is still the one it was attached under — callers
// detach first, then mutate identity, then attachHash under the new one.
func (c *Cache) detachHash(idx int32) {
	b := &c.bufs[idx]
	h := hashIndex(b.dev, b.sector, c.cfg.HashSize)
	if b.hashPrev == none {
		c.hashHeads[h] = b.hashNext
	} else {
		c.bufs[b.hashPrev].hashNext = b.hashNext
	}
	if b.hashNext != none {
		c.bufs[b.hashNext].hashPrev = b.hashPrev
	}
	b.hashPrev, b.hashNext = none, none
}

// attachHash inserts buffer idx at the head of the chain for its current
// (dev,sector) identity.
func (c *Cache) attachHash(idx int32) {
	b := &c.bufs[idx]
	h := hashIndex(b.dev, b.sector, c.cfg.HashSize)
	old := c.hashHeads[h]
	b.hashNext = old
	b.hashPrev = none
	if old != none {
		c.bufs[old].hashPrev = idx
	}
	c.hashHeads[h] = idx
}

// lookupChain walks the hash chain for (dev,sector), returning the index of
// the matching buffer, or none if absent.
func (c *Cache) lookupChain(dev int32, sector uint64) int32 {
	h := hashIndex(dev, sector, c.cfg.HashSize)
	for idx := c.hashHeads[h]; idx != none; idx = c.bufs[idx].hashNext {
		if c.bufs[idx].identifies(dev, sector) {
			return idx
		}
	}
	return none
}
