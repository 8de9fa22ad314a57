package exportcache

import "github.com/prometheus/client_golang/prometheus"

var (
	// cacheRequests counts exports by outcome: hit, miss or error (store
	// unavailable, served from the database).
	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_cache_requests_total",
			Help: "Export requests by cache outcome.",
		},
		[]string{"result"},
	)

	cacheInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "export_cache_invalidations_total",
			Help: "Number of export cache invalidations.",
		},
	)
)

func init() {
	prometheus.MustRegister(cacheRequests, cacheInvalidations)
}
