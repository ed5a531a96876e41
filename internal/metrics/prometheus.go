package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adminraster_lookups_total",
		Help: "Total lookups by outcome (found, not_found, bad_request, error)",
	}, []string{"outcome"})
	LookupDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "adminraster_lookup_duration_ms",
		Help:    "Lookup duration in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 20, 50, 100, 200, 500},
	})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adminraster_redis_hits_total",
		Help: "Total redis result cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adminraster_redis_misses_total",
		Help: "Total redis result cache misses",
	})
	TilesWrittenTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adminraster_tiles_written_total",
		Help: "Tiles written during encode by hemisphere",
	}, []string{"hemisphere"})
	DegenerateRingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adminraster_degenerate_rings_total",
		Help: "Rings with no interior point seen during encode",
	})
	ProcessCPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adminraster_process_cpu_percent",
		Help: "Process CPU usage sampled by the system collector",
	})
	ProcessRSSBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adminraster_process_rss_bytes",
		Help: "Process resident memory sampled by the system collector",
	})
)

func init() {
	prometheus.MustRegister(LookupsTotal)
	prometheus.MustRegister(LookupDurationMs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(TilesWrittenTotal)
	prometheus.MustRegister(DegenerateRingsTotal)
	prometheus.MustRegister(ProcessCPUPercent)
	prometheus.MustRegister(ProcessRSSBytes)
}

// Handler serves the registered metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
