package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cms_dispatch",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cms_dispatch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cms_dispatch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cms_dispatch",
			Subsystem: "dispatch",
			Name:      "calls_total",
			Help:      "Dispatches by track, job kind and outcome code.",
		},
		[]string{"track", "job", "outcome"},
	)

	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cms_dispatch",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Duration of dispatches from auth check to decoded result.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"track"},
	)

	truncations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cms_dispatch",
			Subsystem: "dispatch",
			Name:      "truncated_results_total",
			Help:      "Result sets cut at the configured row ceiling.",
		},
		[]string{"track"},
	)

	oversizedRetrievals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cms_dispatch",
			Subsystem: "dispatch",
			Name:      "oversized_retrievals_total",
			Help:      "FILEDATA values returned despite exceeding the file size ceiling.",
		},
	)

	releaseFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cms_dispatch",
			Subsystem: "dispatch",
			Name:      "release_failures_total",
			Help:      "Failures closing connections or result sets.",
		},
		[]string{"resource"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		dispatches,
		dispatchDuration,
		truncations,
		oversizedRetrievals,
		releaseFailures,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Routes are labelled by their chi pattern to keep cardinality bounded.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func RecordDispatch(track, job, outcome string, d time.Duration) {
	dispatches.WithLabelValues(track, job, outcome).Inc()
	dispatchDuration.WithLabelValues(track).Observe(d.Seconds())
}

func RecordTruncation(track string) {
	truncations.WithLabelValues(track).Inc()
}

func RecordOversizedRetrieval() {
	oversizedRetrievals.Inc()
}

func RecordReleaseFailure(resource string) {
	releaseFailures.WithLabelValues(resource).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
