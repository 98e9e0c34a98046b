package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	promcollectors "github.com/prometheus/client_golang/prometheus/collectors"
)

var AlertsReceivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "firewatch",
		Subsystem: "alerts",
		Name:      "received_total",
		Help:      "Total number of alerts received.",
	},
	[]string{"source", "severity"},
)

var AlertsDeduplicatedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "firewatch",
		Subsystem: "alerts",
		Name:      "deduplicated_total",
		Help:      "Total number of alerts merged into an existing incident.",
	},
)

var AlertProcessingDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "firewatch",
		Subsystem: "alert",
		Name:      "processing_duration_seconds",
		Help:      "Alert webhook processing duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"source"},
)

var IncidentsCreatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "firewatch",
		Subsystem: "incidents",
		Name:      "created_total",
		Help:      "Total number of incidents created.",
	},
	[]string{"source", "severity"},
)

var IncidentsEscalatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "firewatch",
		Subsystem: "incidents",
		Name:      "escalated_total",
		Help:      "Total number of incident escalations by level.",
	},
	[]string{"level"},
)

var EscalationTickDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "firewatch",
		Subsystem: "escalation",
		Name:      "tick_duration_seconds",
		Help:      "Escalation engine tick duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
)

var NotificationsPublishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "firewatch",
		Subsystem: "notifications",
		Name:      "published_total",
		Help:      "Total number of notification intents published by kind.",
	},
	[]string{"kind"},
)

var NotificationsDeliveredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "firewatch",
		Subsystem: "notifications",
		Name:      "delivered_total",
		Help:      "Total number of notifications delivered by provider and result.",
	},
	[]string{"provider", "result"},
)

var UptimeChecksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "firewatch",
		Subsystem: "uptime",
		Name:      "checks_total",
		Help:      "Total number of probe results processed by up/down state.",
	},
	[]string{"state"},
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "firewatch",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// All returns all firewatch-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		AlertsReceivedTotal,
		AlertsDeduplicatedTotal,
		AlertProcessingDuration,
		IncidentsCreatedTotal,
		IncidentsEscalatedTotal,
		EscalationTickDuration,
		NotificationsPublishedTotal,
		NotificationsDeliveredTotal,
		UptimeChecksTotal,
		HTTPRequestDuration,
	}
}

// NewMetricsRegistry creates a registry with the Go and process collectors
// plus the given application collectors.
func NewMetricsRegistry(collectors ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		promcollectors.NewGoCollector(),
		promcollectors.NewProcessCollector(promcollectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(collectors...)
	return reg
}
