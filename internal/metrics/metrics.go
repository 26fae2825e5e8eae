package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all EventHub metrics
const namespace = "eventhub"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// HealthStatus tracks overall server health
// Values: 0 = unhealthy, 1 = degraded, 2 = healthy
var HealthStatus = promauto.With(Registry).NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_status",
		Help:      "Overall server health status (0=unhealthy, 1=degraded, 2=healthy)",
	},
)

// HealthCheckStatus tracks individual health check results
// Values: 0 = fail, 1 = warn, 2 = pass
var HealthCheckStatus = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_check_status",
		Help:      "Individual health check status (0=fail, 1=warn, 2=pass)",
	},
	[]string{"check"},
)

// HealthCheckLatency tracks the latency of individual health checks in milliseconds
var HealthCheckLatency = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_check_latency_ms",
		Help:      "Health check latency in milliseconds",
	},
	[]string{"check"},
)

// Upstream metrics

// UpstreamRequestsTotal counts calls to the legacy backend and the identity provider
var UpstreamRequestsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Total number of requests made to upstream services",
	},
	[]string{"upstream", "operation", "outcome"}, // upstream: legacy|identity, outcome: success|rejected|error
)

// UpstreamLatency tracks upstream request latency
var UpstreamLatency = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_latency_seconds",
		Help:      "Upstream request latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"upstream", "operation"},
)

// Auth metrics

// AuthAttemptsTotal counts login, register and logout attempts by account kind
var AuthAttemptsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_attempts_total",
		Help:      "Total number of authentication actions",
	},
	[]string{"action", "kind", "outcome"}, // outcome: success|pending|invalid|rejected|error
)

// GateDecisionsTotal counts route gate outcomes
var GateDecisionsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_decisions_total",
		Help:      "Total number of route gate decisions",
	},
	[]string{"decision"}, // decision: allow|redirect|loading|guard_redirect
)

// BrowserSessions tracks the number of live browser sessions held in memory
var BrowserSessions = promauto.With(Registry).NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "browser_sessions",
		Help:      "Number of live in-memory browser sessions",
	},
)

// BrowserSessionsExpired counts sessions removed by the idle sweeper
var BrowserSessionsExpired = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "browser_sessions_expired_total",
		Help:      "Total number of browser sessions removed after the idle timeout",
	},
)

// Forms

// InterestSubmissionsTotal counts organizer interest form submissions
var InterestSubmissionsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "organizer_interest_submissions_total",
		Help:      "Total number of organizer interest submissions",
	},
	[]string{"outcome"},
)

// EmailsSentTotal counts notification emails by outcome
var EmailsSentTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emails_sent_total",
		Help:      "Total number of notification emails sent",
	},
	[]string{"template", "outcome"},
)

// ObserveUpstream records one upstream call.
func ObserveUpstream(upstream, operation, outcome string, start time.Time) {
	UpstreamRequestsTotal.WithLabelValues(upstream, operation, outcome).Inc()
	UpstreamLatency.WithLabelValues(upstream, operation).Observe(time.Since(start).Seconds())
}

var registerCollectors sync.Once

// Init registers runtime collectors and sets version information
func Init(version, commit, buildDate string) {
	registerCollectors.Do(func() {
		// Register default Go metrics (memory, goroutines, GC, etc.)
		Registry.MustRegister(collectors.NewGoCollector())

		// Register process metrics (CPU, memory, file descriptors)
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
