package rulecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_rulecache_hits",
	Help: "Number of rule lookups served from a fresh snapshot",
})

var cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_rulecache_misses",
	Help: "Number of rule lookups which required a fetch",
})

var fetchErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_rulecache_fetch_errors",
	Help: "Number of rule fetches which failed after retries",
})

var fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "automod_rulecache_fetch_duration_sec",
	Help: "Duration of rule fetches, including retries",
})

var invalidations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_rulecache_invalidations",
	Help: "Number of guild rule invalidations",
})
