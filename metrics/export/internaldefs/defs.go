package internaldefs

import (
	"github.com/MrEthical07/tokenauth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   tokenauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   tokenauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is exported alongside the engine counters.
const AuditDroppedName = "tokenauth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: tokenauth.MetricIssueSuccess, Name: "tokenauth_issue_success_total", Help: "Token pairs issued on signup or login."},
	{ID: tokenauth.MetricIssueFailure, Name: "tokenauth_issue_failure_total", Help: "Token pairs that could not be signed or attached."},
	{ID: tokenauth.MetricSignUpFailure, Name: "tokenauth_signup_failure_total", Help: "Signups rejected by the identity provider."},
	{ID: tokenauth.MetricLoginFailure, Name: "tokenauth_login_failure_total", Help: "Logins rejected by the identity provider."},
	{ID: tokenauth.MetricLoginNotFound, Name: "tokenauth_login_not_found_total", Help: "Logins for which no identity was found."},
	{ID: tokenauth.MetricRefreshSuccess, Name: "tokenauth_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: tokenauth.MetricRefreshFailure, Name: "tokenauth_refresh_failure_total", Help: "Rotations rejected before the revocation gateway was consulted."},
	{ID: tokenauth.MetricRefreshRevoked, Name: "tokenauth_refresh_revoked_total", Help: "Rotations refused by the revocation gateway."},
	{ID: tokenauth.MetricGatewayError, Name: "tokenauth_gateway_error_total", Help: "Revocation gateway failures."},
	{ID: tokenauth.MetricAutoRefreshSuccess, Name: "tokenauth_auto_refresh_success_total", Help: "Transparent rotations performed by the middleware."},
	{ID: tokenauth.MetricAutoRefreshFailure, Name: "tokenauth_auto_refresh_failure_total", Help: "Failed transparent rotations."},
	{ID: tokenauth.MetricLogout, Name: "tokenauth_logout_total", Help: "Logout requests."},
	{ID: tokenauth.MetricAccessRejected, Name: "tokenauth_access_rejected_total", Help: "Access tokens that failed verification."},
	{ID: tokenauth.MetricLoginThrottled, Name: "tokenauth_login_throttled_total", Help: "Logins refused by the failed-attempt throttle."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: tokenauth.MetricVerifyLatency, Name: "tokenauth_verify_latency_seconds", Help: "Access token verification latency."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets.
var HistogramBounds = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
