// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Producer (C5)
	PagesFetched      prometheus.Counter
	PagesExhausted    prometheus.Counter
	VideosEnqueued    prometheus.Counter
	BundlesExpanded   prometheus.Counter
	PageFetchDuration prometheus.Observer

	// Worker pool (C6)
	ItemsSucceeded      prometheus.Counter
	ItemsFailed         prometheus.Counter
	WorkerItemDuration  prometheus.Observer
	InFlightPermitGauge prometheus.Gauge

	// Requester (C2)
	ThrottleRetries   prometheus.Counter
	RequestsExhausted prometheus.Counter

	// Shared
	QueueDepthGauge prometheus.Gauge
)

func init() {
	Init()
}

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PagesFetched = promauto.NewCounter(prometheus.CounterOpts{Name: "catalog_pages_fetched_total", Help: "Number of listing pages successfully fetched"})
		PagesExhausted = promauto.NewCounter(prometheus.CounterOpts{Name: "catalog_pages_exhausted_total", Help: "Number of listing pages that exhausted the long-interval retry budget"})
		VideosEnqueued = promauto.NewCounter(prometheus.CounterOpts{Name: "catalog_videos_enqueued_total", Help: "Number of videos pushed onto the work queue"})
		BundlesExpanded = promauto.NewCounter(prometheus.CounterOpts{Name: "catalog_bundles_expanded_total", Help: "Number of distinct bundles expanded inline during production"})
		PageFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_page_fetch_duration_seconds",
			Help:    "Duration of one listing page fetch, including any retries",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		})

		ItemsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "catalog_worker_items_succeeded_total", Help: "Number of videos successfully enriched and persisted"})
		ItemsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "catalog_worker_items_failed_total", Help: "Number of videos skipped after an enrichment or persist failure"})
		WorkerItemDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_worker_item_duration_seconds",
			Help:    "Duration of one worker's pop-to-acknowledge cycle",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		})
		InFlightPermitGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "catalog_worker_permits_in_use", Help: "Current number of held worker-pool permits"})

		ThrottleRetries = promauto.NewCounter(prometheus.CounterOpts{Name: "catalog_throttle_retries_total", Help: "Number of HTTP 412 throttle responses that triggered a retry"})
		RequestsExhausted = promauto.NewCounter(prometheus.CounterOpts{Name: "catalog_requests_exhausted_total", Help: "Number of requests that exhausted their retry budget"})

		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "catalog_queue_depth", Help: "Current number of videos waiting in the work queue"})
	})
}

// SetQueueDepth records current unprocessed video count.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying id as its correlation id,
// replacing any id the parent context carried.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
