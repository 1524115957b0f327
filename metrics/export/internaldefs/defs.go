package internaldefs

import (
	goGate "github.com/MrEthical07/goGate"
)

// CounterDef names one plane counter for exporters.
type CounterDef struct {
	ID   goGate.MetricID
	Name string
	Help string
}

// HistogramDef names one plane latency histogram for exporters.
type HistogramDef struct {
	ID   goGate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: goGate.MetricTokenIssued, Name: "gogate_token_issued_total", Help: "Issued access/refresh token pairs."},
	{ID: goGate.MetricTokenRefreshed, Name: "gogate_token_refreshed_total", Help: "Successful refresh token rotations."},
	{ID: goGate.MetricRefreshRejected, Name: "gogate_refresh_rejected_total", Help: "Refresh tokens rejected as invalid or revoked."},
	{ID: goGate.MetricAccessTokenRejected, Name: "gogate_access_token_rejected_total", Help: "Access tokens that failed verification."},
	{ID: goGate.MetricTokenRevoked, Name: "gogate_token_revoked_total", Help: "Single refresh token revocations."},
	{ID: goGate.MetricPrincipalTokensRevoked, Name: "gogate_principal_tokens_revoked_total", Help: "Refresh tokens removed by principal-wide revocation."},
	{ID: goGate.MetricCleanupRemoved, Name: "gogate_cleanup_removed_total", Help: "Dangling refresh index entries removed by cleanup."},
	{ID: goGate.MetricSessionCreated, Name: "gogate_session_created_total", Help: "Created sessions."},
	{ID: goGate.MetricSessionEvicted, Name: "gogate_session_evicted_total", Help: "Sessions evicted by the per-principal cap."},
	{ID: goGate.MetricSessionInvalidated, Name: "gogate_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: goGate.MetricSessionNotFound, Name: "gogate_session_not_found_total", Help: "Session lookups that found no live session."},
	{ID: goGate.MetricFingerprintRejected, Name: "gogate_fingerprint_rejected_total", Help: "Session creations rejected for a missing device fingerprint."},
	{ID: goGate.MetricRateLimitAllowed, Name: "gogate_rate_limit_allowed_total", Help: "Rate-limit checks that admitted the request."},
	{ID: goGate.MetricRateLimitHit, Name: "gogate_rate_limit_hit_total", Help: "Rate-limit checks that denied the request."},
	{ID: goGate.MetricRateLimitFailedOpen, Name: "gogate_rate_limit_failed_open_total", Help: "Rate-limit checks admitted because the store was unavailable."},
	{ID: goGate.MetricRateLimitUnmatched, Name: "gogate_rate_limit_unmatched_total", Help: "Requests no rate-limit rule applied to."},
	{ID: goGate.MetricStoreUnavailable, Name: "gogate_store_unavailable_total", Help: "Operations that failed to reach the store."},
}

// AuditDroppedName and AuditDroppedHelp describe the audit backpressure counter,
// which is read from Plane.AuditDropped rather than the metrics snapshot.
const (
	AuditDroppedName = "gogate_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGate.MetricRateLimitLatency, Name: "gogate_rate_limit_latency_seconds", Help: "Rate-limit check latency."},
	{ID: goGate.MetricRefreshLatency, Name: "gogate_refresh_latency_seconds", Help: "Refresh token rotation latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that need
// one instrument per bucket.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the eight plane buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
