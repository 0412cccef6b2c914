package modcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "antigcast_modcache_hits",
	Help: "Number of ruleset reads served from the cache",
})

var cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "antigcast_modcache_misses",
	Help: "Number of ruleset reads which missed the cache (absent or expired)",
})

var fetchesCoalesced = promauto.NewCounter(prometheus.CounterOpts{
	Name: "antigcast_modcache_fetches_coalesced",
	Help: "Number of ruleset reads which joined an in-flight store fetch",
})

var fetchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "antigcast_modcache_fetches",
	Help: "Number of ruleset store fetches, by status",
}, []string{"status"})

var fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "antigcast_modcache_fetch_duration_sec",
	Help:    "Duration of ruleset store fetches",
	Buckets: prometheus.ExponentialBucketsRange(0.0001, 5, 20),
}, []string{"status"})

var invalidations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "antigcast_modcache_invalidations",
	Help: "Number of cache entries dropped by write-through mutations",
})

var staleWrites = promauto.NewCounter(prometheus.CounterOpts{
	Name: "antigcast_modcache_stale_writes",
	Help: "Number of write-through mutations which failed at the store",
})
