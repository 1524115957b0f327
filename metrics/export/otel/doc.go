// Package otel publishes goGate plane metrics through an OpenTelemetry Meter.
//
// [NewExporter] registers one Int64ObservableCounter per plane counter, plus
// gogate_audit_dropped_total fed by [goGate.Plane.AuditDropped]. Each latency
// histogram becomes a <name>_bucket gauge with one cumulative point per "le"
// attribute and a <name>_count counter. Histograms are skipped while latency
// tracking is off. A single callback reads [goGate.Plane.MetricsSnapshot] on
// each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate plane state.
package otel
