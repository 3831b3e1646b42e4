// Package bmetrics declares the prometheus collectors published by bcache:
// named package-level metric variables registered once at import time.
package bmetrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Hits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bcache_hits_total",
		Help: "Number of get() calls satisfied by an already-cached buffer.",
	})
	Misses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bcache_misses_total",
		Help: "Number of get() lookups that found no cached buffer, counted again on each retry after a wait.",
	})
	Evictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bcache_evictions_total",
		Help: "Number of buffers reassigned away from a previously held identity.",
	})
	DirtyFlushes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bcache_dirty_flushes_total",
		Help: "Number of synchronous device writes issued to flush a dirty buffer before eviction.",
	})
	QuotaBlocked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bcache_quota_blocked_total",
		Help: "Number of times the SRP per-inode quota restricted eviction to the same inode's buffers, whether or not one was free.",
	})
	VictimHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bcache_victim_cache_hits_total",
		Help: "Number of read misses satisfied from the clean victim cache instead of the device.",
	})
	Waiters = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bcache_waiters",
		Help: "Current number of goroutines blocked inside get() waiting on a buffer or the pool.",
	})
	PoolExhausted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bcache_pool_exhausted_total",
		Help: "Number of times get() found no evictable buffer and slept on the exhaustion channel.",
	})
)

func init() {
	prometheus.MustRegister(Hits, Misses, Evictions, DirtyFlushes, QuotaBlocked, VictimHits, Waiters, PoolExhausted)
}
