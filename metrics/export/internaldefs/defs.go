// Package internaldefs holds the shared metric definitions the exporters
// render from, so the OTel and Prometheus views of the engine stay in sync.
package internaldefs

import (
	otpgate "github.com/otpgate/otpgate"
)

// CounterDef maps one engine counter to an exported metric name.
type CounterDef struct {
	ID   otpgate.MetricID
	Name string
	Help string
}

// HistogramDef maps one engine histogram to an exported metric name.
type HistogramDef struct {
	ID   otpgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported engine counter.
var CounterDefs = []CounterDef{
	{ID: otpgate.MetricChallengeIssued, Name: "otpgate_challenge_issued_total", Help: "Successfully issued challenges."},
	{ID: otpgate.MetricChallengeDuplicate, Name: "otpgate_challenge_duplicate_total", Help: "Challenge requests absorbed by idempotency."},
	{ID: otpgate.MetricChallengeRateLimited, Name: "otpgate_challenge_rate_limited_total", Help: "Rate-limited challenge requests."},
	{ID: otpgate.MetricChallengeLockedOut, Name: "otpgate_challenge_locked_out_total", Help: "Operations rejected during lockout cooldown."},
	{ID: otpgate.MetricVerifySuccess, Name: "otpgate_verify_success_total", Help: "Consumed verifications."},
	{ID: otpgate.MetricVerifyFailure, Name: "otpgate_verify_failure_total", Help: "Wrong-code verifications."},
	{ID: otpgate.MetricVerifyNoChallenge, Name: "otpgate_verify_no_challenge_total", Help: "Verifications with no live challenge."},
	{ID: otpgate.MetricLockoutTripped, Name: "otpgate_lockout_tripped_total", Help: "Failures that started a lockout."},
	{ID: otpgate.MetricDeliveryFailure, Name: "otpgate_delivery_failure_total", Help: "Code delivery failures."},
	{ID: otpgate.MetricIdempotencyFailOpen, Name: "otpgate_idempotency_fail_open_total", Help: "Idempotency store errors converted to allow."},
	{ID: otpgate.MetricStoreError, Name: "otpgate_store_error_total", Help: "Fail-closed backing store errors."},
}

// HistogramDefs lists every exported engine histogram.
var HistogramDefs = []HistogramDef{
	{ID: otpgate.MetricVerifyLatency, Name: "otpgate_verify_latency_seconds", Help: "Verify latency histogram."},
}

// HistogramBounds are the Prometheus `le` labels for the eight fixed
// buckets, in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are the bucket name suffixes for backends without
// labeled buckets.
var HistogramBoundSuffix = []string{
	"5ms",
	"10ms",
	"25ms",
	"50ms",
	"100ms",
	"250ms",
	"500ms",
	"inf",
}

// NormalizeBuckets pads or trims a snapshot slice to the fixed bucket count.
func NormalizeBuckets(buckets []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(buckets); i++ {
		out[i] = buckets[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form both
// Prometheus and OTel histogram conventions expect.
func CumulativeBuckets(buckets [8]uint64) [8]uint64 {
	var out [8]uint64
	var sum uint64
	for i := 0; i < len(buckets); i++ {
		sum += buckets[i]
		out[i] = sum
	}
	return out
}
