package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysisRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "truefriends_analysis_runs_total",
		Help: "Total interaction analysis runs",
	})
	AnalysisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "truefriends_analysis_errors_total",
		Help: "Total interaction analysis failures",
	})
	AnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "truefriends_analysis_duration_seconds",
		Help:    "Interaction analysis duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	APICalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "truefriends_api_calls_total",
		Help: "Total outbound X API calls",
	}, []string{"endpoint"})
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "truefriends_cache_hits_total",
		Help: "Total result cache hits",
	})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "truefriends_cache_misses_total",
		Help: "Total result cache misses",
	})
)

func init() {
	prometheus.MustRegister(AnalysisRuns, AnalysisErrors, AnalysisDuration, APICalls, CacheHits, CacheMisses)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveAnalysisDuration records one run's duration.
func ObserveAnalysisDuration(start time.Time) {
	AnalysisDuration.Observe(time.Since(start).Seconds())
}

// IncAPICall increments the outbound call counter for an endpoint.
func IncAPICall(endpoint string) { APICalls.WithLabelValues(endpoint).Inc() }
