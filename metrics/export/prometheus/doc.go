// Package prometheus exposes goGate plane metrics as a prometheus.Collector.
//
// [NewCollector] reads [goGate.Plane.MetricsSnapshot] on every scrape. Counters are
// named gogate_*_total and latency histograms gogate_*_latency_seconds.
// gogate_audit_dropped_total comes from [goGate.Plane.AuditDropped].
// [Collector.Handler] serves the collector from a private registry; callers that
// run their own registry register the Collector instead.
//
// # What this package must NOT do
//
//   - Register into the global Prometheus registry.
//   - Mutate plane state.
package prometheus
