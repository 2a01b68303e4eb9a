package main

import "github.com/prometheus/client_golang/prometheus"

// metrics are the process-wide counters/gauges exposed at GET /metrics,
// grounded on the teacher's app-level progress callbacks (app_settings.go)
// generalized into Prometheus collectors instead of Wails event emission.
type metrics struct {
	elevationRequests  *prometheus.CounterVec
	cacheBytesUsed      prometheus.Gauge
	retrievalQueueDepth prometheus.Gauge
	absentMarks         prometheus.Counter
	bulkTilesFetched    prometheus.Counter
	bulkJobsActive      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		elevationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "elevationd_elevation_requests_total",
			Help: "Elevation query requests by route.",
		}, []string{"route"}),
		cacheBytesUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "elevationd_memcache_bytes_used",
			Help: "Current byte usage of the tile memory cache.",
		}),
		retrievalQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "elevationd_retrieval_queue_depth",
			Help: "Approximate depth of the network retrieval queue.",
		}),
		absentMarks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "elevationd_absent_marks_total",
			Help: "Tiles marked absent after a failed retrieval.",
		}),
		bulkTilesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "elevationd_bulk_tiles_fetched_total",
			Help: "Tiles successfully fetched by bulk downloads.",
		}),
		bulkJobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "elevationd_bulk_jobs_active",
			Help: "Bulk download jobs currently running.",
		}),
	}
	reg.MustRegister(
		m.elevationRequests, m.cacheBytesUsed, m.retrievalQueueDepth,
		m.absentMarks, m.bulkTilesFetched, m.bulkJobsActive,
	)
	return m
}
