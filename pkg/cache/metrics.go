package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facility_engine_cache_lookups_total",
			Help: "Cache lookups by tier, group and result (hit or miss)",
		},
		[]string{"tier", "group", "result"},
	)

	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facility_engine_cache_errors_total",
			Help: "Cache tier operations that failed",
		},
		[]string{"tier", "op"},
	)

	cacheGroupFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facility_engine_cache_group_flushes_total",
			Help: "Cache group flushes",
		},
		[]string{"group"},
	)

	cacheStaleWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facility_engine_cache_stale_writes_total",
			Help: "Cache writes dropped because their group was cleared while the value loaded",
		},
		[]string{"group"},
	)
)
