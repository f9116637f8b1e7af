/*
Package metrics provides Prometheus metrics collection and exposition for the vault.

The metrics package defines and registers every vault metric using the
Prometheus client library, providing observability into seal state, barrier
throughput, lease churn, and request latency. Metrics are exposed over HTTP
for scraping by a Prometheus server.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Seal: sealed/initialized/unseal progress   │          │
	│  │  Barrier: op count, op latency              │          │
	│  │  Token: live count, revocations             │          │
	│  │  Lease: active count, expirations, scans    │          │
	│  │  Engine: request count, latency by mount    │          │
	│  │  Policy: allow/deny decision counts         │          │
	│  │  Audit: events written, backend failures    │          │
	│  │  API: request count, latency by route       │          │
	│  └──────────────────────────────────────────────┘          │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

# Usage

Most callers record metrics with a Timer:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BarrierOpDuration, "put")

Gauges like Sealed and UnsealProgress are set directly by the seal manager
whenever the seal state transitions, rather than sampled periodically —
there is no background collector, since the vault has no cluster-wide state
to poll.
*/
package metrics
