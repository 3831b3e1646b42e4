package bcache

import (
	"encoding/binary"

	"github.com/VictoriaMetrics/fastcache"
)

// victimCache shadows the last known bytes of clean buffers evicted from
// the pool, keyed by (dev,sector): a bounded, GC-friendly memory cache
// sitting in front of the Device so that a sector re-read shortly after
// eviction doesn't have to pay for another device round trip. A dirty
// buffer is never stashed here: its bytes are not the disk's bytes until
// flushed, and flushing already happens synchronously on eviction.
type victimCache struct {
	c *fastcache.Cache
}

func newVictimCache(maxBytes int) *victimCache {
	if maxBytes <= 0 {
		return &victimCache{}
	}
	return &victimCache{c: fastcache.New(maxBytes)}
}

func victimKey(dev int32, sector uint64) []byte {
	key := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(key[:4], uint32(dev))
	binary.LittleEndian.PutUint64(key[4:], sector)
	return key
}

func (v *victimCache) stash(dev int32, sector uint64, data []byte) {
	if v.c == nil {
		return
	}
	v.c.Set(victimKey(dev, sector), data)
}

func (v *victimCache) fetch(dev int32, sector uint64, into []byte) bool {
	if v.c == nil {
		return false
	}
	blob, ok := v.c.HasGet(into[:0], victimKey(dev, sector))
	if !ok {
		return false
	}
	if len(blob) != len(into) {
		return false
	}
	return true
}

// drop removes any shadow of (dev,sector), used once a sector is freshly
// written through Write so the victim cache cannot serve stale bytes.
func (v *victimCache) drop(dev int32, sector uint64) {
	if v.c == nil {
		return
	}
	v.c.Del(victimKey(dev, sector))
}
