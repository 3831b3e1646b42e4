package bcache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/simplelru"
)

// opRecord is one entry in the diagnostic operation ring: a queryable
// record of recent cache activity.
type opRecord struct {
	Seq    uint64
	At     time.Time
	Op     string
	Dev    int32
	Sector uint64
	Inum   uint64
}

// opLog is a bounded ring of recent cache operations backed by
// hashicorp/golang-lru's simplelru: every key is unique (a monotonic
// sequence number) so the LRU policy degenerates into exactly the
// fixed-capacity ring we want, without hand-rolling one.
type opLog struct {
	lru *lru.LRU
	seq uint64
}

func newOpLog(capacity int) *opLog {
	if capacity <= 0 {
		return &opLog{}
	}
	l, _ := lru.NewLRU(capacity, nil)
	return &opLog{lru: l}
}

// record must be called with the cache's lock held.
func (o *opLog) record(op string, dev int32, sector uint64, inum uint64) {
	if o.lru == nil {
		return
	}
	o.seq++
	o.lru.Add(o.seq, opRecord{Seq: o.seq, At: time.Now(), Op: op, Dev: dev, Sector: sector, Inum: inum})
}

// recent returns up to the full ring contents, oldest first.
func (o *opLog) recent() []opRecord {
	if o.lru == nil {
		return nil
	}
	keys := o.lru.Keys()
	out := make([]opRecord, 0, len(keys))
	for _, k := range keys {
		if v, ok := o.lru.Peek(k); ok {
			out = append(out, v.(opRecord))
		}
	}
	return out
}
