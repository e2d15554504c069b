/*
Package metrics provides Prometheus metrics collection and exposition for
taskpulsed.

All metrics are registered at package init against the default Prometheus
registry and exposed over HTTP for scraping.

# Metrics catalog

Event ingestion:

	taskpulse_events_processed_total{kind}  Counter
	taskpulse_event_queue_depth              Gauge

Publish cycle:

	taskpulse_publish_duration_seconds       Histogram
	taskpulse_watchers_active                Gauge
	taskpulse_details_watchers_active        Gauge
	taskpulse_watcher_drops_total{stream}    Counter

Entity tables:

	taskpulse_entities_total{table}          Gauge
	taskpulse_evictions_total{table}         Counter

Failures:

	taskpulse_fatal_errors_total             Counter

# Usage

	timer := metrics.NewTimer()
	// ... publish cycle ...
	timer.ObserveDuration(metrics.PublishDuration)

	metrics.EventsProcessedTotal.WithLabelValues("Enter").Inc()
	metrics.EntitiesTotal.WithLabelValues("tasks").Set(float64(tasks.Len()))

# See also

  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
