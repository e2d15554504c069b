package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Event ingestion metrics
	EventsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpulse_events_processed_total",
			Help: "Total number of lifecycle events reduced into aggregator state, by kind",
		},
		[]string{"kind"},
	)

	EventQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskpulse_event_queue_depth",
			Help: "Depth of the inbound event channel, sampled opportunistically during the drain loop",
		},
	)

	// Publish metrics
	PublishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskpulse_publish_duration_seconds",
			Help:    "Time spent rendering and sending one publish cycle to subscribers",
			Buckets: prometheus.DefBuckets,
		},
	)

	WatchersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskpulse_watchers_active",
			Help: "Number of live instrument-stream watchers",
		},
	)

	DetailsWatchersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskpulse_details_watchers_active",
			Help: "Number of live task-detail-stream watchers",
		},
	)

	WatcherDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpulse_watcher_drops_total",
			Help: "Total number of watchers dropped for a full or closed outbound queue, by stream",
		},
		[]string{"stream"},
	)

	// Entity table metrics
	EntitiesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskpulse_entities_total",
			Help: "Number of rows currently held in an entity table",
		},
		[]string{"table"},
	)

	EvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpulse_evictions_total",
			Help: "Total number of rows evicted by the retention sweep, by table",
		},
		[]string{"table"},
	)

	// Failure metrics
	FatalErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskpulse_fatal_errors_total",
			Help: "Total number of producer-contract violations that aborted the aggregator",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsProcessedTotal)
	prometheus.MustRegister(EventQueueDepth)
	prometheus.MustRegister(PublishDuration)
	prometheus.MustRegister(WatchersActive)
	prometheus.MustRegister(DetailsWatchersActive)
	prometheus.MustRegister(WatcherDropsTotal)
	prometheus.MustRegister(EntitiesTotal)
	prometheus.MustRegister(EvictionsTotal)
	prometheus.MustRegister(FatalErrorsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram *prometheus.HistogramVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
