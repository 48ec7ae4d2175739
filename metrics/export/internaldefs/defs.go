package internaldefs

import (
	"github.com/MrEthical07/deviceauth"
)

type CounterDef struct {
	ID   deviceauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   deviceauth.MetricID
	Name string
	Help string
}

// BucketCount is the number of histogram buckets including +Inf.
const BucketCount = len(deviceauth.HistogramBucketBounds) + 1

const AuditDroppedName = "deviceauth_audit_dropped_total"

const AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

const AuditSinkPanicsName = "deviceauth_audit_sink_panics_total"

const AuditSinkPanicsHelp = "Audit events the sink panicked on."

var CounterDefs = []CounterDef{
	{ID: deviceauth.MetricLoginSuccess, Name: "deviceauth_login_success_total", Help: "Successful logins."},
	{ID: deviceauth.MetricLoginFailure, Name: "deviceauth_login_failure_total", Help: "Failed logins."},
	{ID: deviceauth.MetricLoginRateLimited, Name: "deviceauth_login_rate_limited_total", Help: "Logins rejected by the rate limiter."},
	{ID: deviceauth.MetricRefreshSuccess, Name: "deviceauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: deviceauth.MetricRefreshFailure, Name: "deviceauth_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: deviceauth.MetricRefreshReuseDetected, Name: "deviceauth_refresh_reuse_detected_total", Help: "Refresh attempts with a credential that was already rotated."},
	{ID: deviceauth.MetricRefreshRateLimited, Name: "deviceauth_refresh_rate_limited_total", Help: "Refreshes rejected by the per-device throttle."},
	{ID: deviceauth.MetricSessionCreated, Name: "deviceauth_session_created_total", Help: "Device sessions opened by login."},
	{ID: deviceauth.MetricSessionRevoked, Name: "deviceauth_session_revoked_total", Help: "Device sessions removed by logout or revocation."},
	{ID: deviceauth.MetricLogout, Name: "deviceauth_logout_total", Help: "Successful logouts."},
	{ID: deviceauth.MetricRevokeOthers, Name: "deviceauth_revoke_others_total", Help: "Revoke-all-other-devices operations."},
	{ID: deviceauth.MetricRevokeDeviceSuccess, Name: "deviceauth_revoke_device_success_total", Help: "Single device revocations that succeeded."},
	{ID: deviceauth.MetricRevokeDeviceNotFound, Name: "deviceauth_revoke_device_not_found_total", Help: "Single device revocations for unknown devices."},
	{ID: deviceauth.MetricRevokeDeviceForbidden, Name: "deviceauth_revoke_device_forbidden_total", Help: "Single device revocations of another user's device."},
	{ID: deviceauth.MetricUnauthorized, Name: "deviceauth_unauthorized_total", Help: "Requests rejected for an invalid or stale refresh credential."},
	{ID: deviceauth.MetricStoreFailure, Name: "deviceauth_store_failure_total", Help: "Operations aborted by a storage fault."},
	{ID: deviceauth.MetricRateLimitHit, Name: "deviceauth_rate_limit_hit_total", Help: "Rate limit checks that denied a request."},
	{ID: deviceauth.MetricAccessValidated, Name: "deviceauth_access_validated_total", Help: "Access credentials accepted."},
	{ID: deviceauth.MetricAccessRejected, Name: "deviceauth_access_rejected_total", Help: "Access credentials rejected."},
}

var HistogramDefs = []HistogramDef{
	{ID: deviceauth.MetricLoginLatency, Name: "deviceauth_login_latency_seconds", Help: "Login latency."},
	{ID: deviceauth.MetricRefreshLatency, Name: "deviceauth_refresh_latency_seconds", Help: "Refresh latency."},
}

// UpperBoundsSeconds converts the engine's millisecond bucket bounds to
// seconds, excluding +Inf.
func UpperBoundsSeconds() []float64 {
	out := make([]float64, len(deviceauth.HistogramBucketBounds))
	for i, ms := range deviceauth.HistogramBucketBounds {
		out[i] = float64(ms) / 1000
	}
	return out
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
