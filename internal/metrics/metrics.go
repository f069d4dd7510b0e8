// Package metrics exposes Prometheus collectors for harvest outcomes and the
// HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "igharvest"

// Collector owns a private registry with every igharvest metric
type Collector struct {
	registry *prometheus.Registry

	accountsTotal   *prometheus.CounterVec
	itemsScraped    prometheus.Counter
	batchesTotal    *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	providerRuns    *prometheus.HistogramVec
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

// New registers all collectors
func New() (*Collector, error) {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		accountsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "accounts_total",
			Help:      "Accounts processed, by outcome and error kind.",
		}, []string{"outcome", "kind"}),
		itemsScraped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "items_scraped_total",
			Help:      "Posts upserted into the store.",
		}),
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "batches_total",
			Help:      "Harvest invocations, by result.",
		}, []string{"result"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one harvest invocation.",
			Buckets:   []float64{1, 10, 30, 60, 300, 600, 1800, 3600},
		}),
		providerRuns: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "run_duration_seconds",
			Help:      "Time from actor start to terminal status.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
	}

	for _, col := range []prometheus.Collector{
		c.accountsTotal, c.itemsScraped, c.batchesTotal, c.batchDuration,
		c.providerRuns, c.requestDuration, c.requestTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveAccount records one account outcome. kind is the error kind, empty
// on success.
func (c *Collector) ObserveAccount(items int, kind string) {
	if c == nil {
		return
	}
	if kind == "" {
		c.accountsTotal.WithLabelValues("success", "").Inc()
		c.itemsScraped.Add(float64(items))
		return
	}
	c.accountsTotal.WithLabelValues("failed", kind).Inc()
}

// ObserveBatch records one invocation
func (c *Collector) ObserveBatch(duration time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.batchesTotal.WithLabelValues(result).Inc()
	c.batchDuration.Observe(duration.Seconds())
}

// ObserveProviderRun records how long an actor run took to reach status
func (c *Collector) ObserveProviderRun(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.providerRuns.WithLabelValues(status).Observe(duration.Seconds())
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics. The
// path label is the matched route pattern to keep cardinality bounded.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(rw.status)

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
