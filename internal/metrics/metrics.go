// Package metrics wraps a private prometheus.Registry with the counters and
// gauges the admin HTTP surface exposes at /metrics, grounded in the
// GoCodeAlone/workflow example's MetricsCollector — its own registry rather
// than the global default, so tests can construct a fresh Collector without
// cross-test registration panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sla_agent"

// Collector holds every metric the tick lifecycle and notification manager
// report against.
type Collector struct {
	registry *prometheus.Registry

	TicksTotal            *prometheus.CounterVec
	TickDurationSeconds   prometheus.Histogram
	OpportunitiesGauge    prometheus.Gauge
	NotificationsSent     prometheus.Counter
	NotificationsFailed   prometheus.Counter
	WebhookDispatchErrors prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of orchestrator ticks, by final status.",
		}, []string{"status"}),
		TickDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of a full orchestrator tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		OpportunitiesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "opportunities_processed",
			Help:      "Number of opportunities classified in the most recent tick.",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Total notification tasks transitioned to Sent.",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Total notification tasks transitioned to Failed.",
		}),
		WebhookDispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_dispatch_errors_total",
			Help:      "Total notification batches whose webhook dispatch failed, either resolving the webhook URL or enqueuing the dispatch job.",
		}),
	}

	reg.MustRegister(
		c.TicksTotal,
		c.TickDurationSeconds,
		c.OpportunitiesGauge,
		c.NotificationsSent,
		c.NotificationsFailed,
		c.WebhookDispatchErrors,
	)
	return c
}

// Handler returns the HTTP handler for this collector's registry, to be
// mounted at /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveTick records one completed tick's status, duration and counts.
func (c *Collector) ObserveTick(status string, durationSeconds float64, opportunitiesProcessed, sent, failed int) {
	c.TicksTotal.WithLabelValues(status).Inc()
	c.TickDurationSeconds.Observe(durationSeconds)
	c.OpportunitiesGauge.Set(float64(opportunitiesProcessed))
	c.NotificationsSent.Add(float64(sent))
	c.NotificationsFailed.Add(float64(failed))
}
