package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Seal state metrics
	Sealed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_sealed",
			Help: "Whether the vault is currently sealed (1) or unsealed (0).",
		},
	)

	Initialized = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_initialized",
			Help: "Whether the vault has completed initialization.",
		},
	)

	UnsealProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_unseal_progress",
			Help: "Number of unseal shares submitted toward the configured threshold.",
		},
	)

	// Barrier metrics
	BarrierOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_barrier_operations_total",
			Help: "Total barrier operations by kind and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	BarrierOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vault_barrier_operation_duration_seconds",
			Help:    "Latency of barrier operations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Token store metrics
	TokensTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_tokens_total",
			Help: "Number of live tokens in the token store.",
		},
	)

	TokenRevocationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_token_revocations_total",
			Help: "Total tokens revoked, including cascaded child revocations.",
		},
	)

	// Lease metrics
	LeasesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_leases_active",
			Help: "Number of active (non-expired, non-revoked) leases.",
		},
	)

	LeaseExpirationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_lease_expirations_total",
			Help: "Total leases reaped by the expiry worker.",
		},
	)

	LeaseScanFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_lease_scan_failures_total",
			Help: "Total lease-expiry scan ticks that exhausted their retry budget.",
		},
	)

	LeaseScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vault_lease_scan_duration_seconds",
			Help:    "Duration of a single lease-expiry scan tick.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Secrets engine metrics
	EngineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_engine_requests_total",
			Help: "Total requests handled by a secrets engine, by mount and operation.",
		},
		[]string{"mount", "engine", "operation", "outcome"},
	)

	EngineRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vault_engine_request_duration_seconds",
			Help:    "Latency of secrets engine requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mount", "engine", "operation"},
	)

	// Policy evaluation metrics
	PolicyChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_policy_checks_total",
			Help: "Total policy evaluations by decision.",
		},
		[]string{"decision"},
	)

	// Audit metrics
	AuditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_audit_events_total",
			Help: "Total audit log entries written, by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	AuditBackendFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_audit_backend_failures_total",
			Help: "Total times every configured audit backend failed for a single request.",
		},
	)

	// HTTP surface metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_api_requests_total",
			Help: "Total HTTP API requests by route and status class.",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vault_api_request_duration_seconds",
			Help:    "Latency of HTTP API requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(Sealed)
	prometheus.MustRegister(Initialized)
	prometheus.MustRegister(UnsealProgress)
	prometheus.MustRegister(BarrierOpsTotal)
	prometheus.MustRegister(BarrierOpDuration)
	prometheus.MustRegister(TokensTotal)
	prometheus.MustRegister(TokenRevocationsTotal)
	prometheus.MustRegister(LeasesActive)
	prometheus.MustRegister(LeaseExpirationsTotal)
	prometheus.MustRegister(LeaseScanFailuresTotal)
	prometheus.MustRegister(LeaseScanDuration)
	prometheus.MustRegister(EngineRequestsTotal)
	prometheus.MustRegister(EngineRequestDuration)
	prometheus.MustRegister(PolicyChecksTotal)
	prometheus.MustRegister(AuditEventsTotal)
	prometheus.MustRegister(AuditBackendFailuresTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
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
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
