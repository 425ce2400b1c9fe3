// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvesterFetchesTotal           *prometheus.CounterVec
	harvesterFetchDurationSeconds   *prometheus.HistogramVec
	harvesterBytesTotal             *prometheus.CounterVec
	harvesterUnitsTotal             *prometheus.CounterVec
	harvesterRecordsExtractedTotal  *prometheus.CounterVec
	harvesterRecordsDroppedTotal    *prometheus.CounterVec
	harvesterRecordsInsertedTotal   prometheus.Counter
	harvesterInsertFailuresTotal    prometheus.Counter
	harvesterImagesTotal            *prometheus.CounterVec
	harvesterRateLimitDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetches_total",
				Help: "Total number of fetch attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		harvesterFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies including retries, labeled by outcome.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		)

		harvesterBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		harvesterUnitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_units_total",
				Help: "Units of work processed by the orchestrator, labeled by kind and status.",
			},
			[]string{"kind", "status"},
		)

		harvesterRecordsExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_extracted_total",
				Help: "Article records extracted, labeled by source type.",
			},
			[]string{"source_type"},
		)

		harvesterRecordsDroppedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_dropped_total",
				Help: "Article records dropped by the ingestion filter, labeled by reason.",
			},
			[]string{"reason"},
		)

		harvesterRecordsInsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_records_inserted_total",
				Help: "Article records persisted to the store.",
			},
		)

		harvesterInsertFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_insert_failures_total",
				Help: "Article records rejected by the store during individual inserts.",
			},
		)

		harvesterImagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_images_total",
				Help: "Image enrichment lookups, labeled by result.",
			},
			[]string{"result"},
		)

		harvesterRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delays_seconds",
				Help:    "Time spent waiting on the per-domain rate limiter.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"site"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchAttempt counts one fetch attempt and the bytes it returned.
func ObserveFetchAttempt(site, outcome string, bytesFetched int) {
	Init()
	sanitized := SanitizeSite(site)
	harvesterFetchesTotal.WithLabelValues(sanitized, outcome).Inc()
	if bytesFetched > 0 {
		harvesterBytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveFetch records the total latency of a fetch, retries included.
func ObserveFetch(outcome string, duration time.Duration) {
	Init()
	harvesterFetchDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveUnit counts one orchestrator unit of work.
func ObserveUnit(kind, status string) {
	Init()
	harvesterUnitsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveExtracted counts records extracted for a source type.
func ObserveExtracted(sourceType string, n int) {
	Init()
	if n <= 0 {
		return
	}
	harvesterRecordsExtractedTotal.WithLabelValues(sourceType).Add(float64(n))
}

// ObserveDropped counts one record dropped by the ingestion filter.
func ObserveDropped(reason string) {
	Init()
	harvesterRecordsDroppedTotal.WithLabelValues(reason).Inc()
}

// ObserveInserted counts persisted records.
func ObserveInserted(n int) {
	Init()
	if n <= 0 {
		return
	}
	harvesterRecordsInsertedTotal.Add(float64(n))
}

// ObserveInsertFailure counts one record rejected by the store.
func ObserveInsertFailure() {
	Init()
	harvesterInsertFailuresTotal.Inc()
}

// ObserveImage counts one image enrichment lookup.
func ObserveImage(result string) {
	Init()
	harvesterImagesTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	harvesterRateLimitDelaysSeconds.WithLabelValues(site).Observe(duration.Seconds())
}
