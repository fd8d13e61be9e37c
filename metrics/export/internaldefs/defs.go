package internaldefs

import (
	"github.com/MrEthical07/carebook"
)

// CounterDef names one Engine counter for the exporters.
type CounterDef struct {
	ID   carebook.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   carebook.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: carebook.MetricCodeRequested, Name: "carebook_code_requested_total", Help: "One-time codes issued through the request path."},
	{ID: carebook.MetricCodeResent, Name: "carebook_code_resent_total", Help: "One-time codes issued through the resend path."},
	{ID: carebook.MetricCodeVerifySuccess, Name: "carebook_code_verify_success_total", Help: "Successful code verifications."},
	{ID: carebook.MetricCodeVerifyFailure, Name: "carebook_code_verify_failure_total", Help: "Failed code verifications."},
	{ID: carebook.MetricCodeAttemptsExceeded, Name: "carebook_code_attempts_exceeded_total", Help: "Verifications rejected because the code exhausted its attempts."},
	{ID: carebook.MetricMagicLinkRequested, Name: "carebook_magic_link_requested_total", Help: "Magic links issued."},
	{ID: carebook.MetricMagicLinkVerifySuccess, Name: "carebook_magic_link_verify_success_total", Help: "Successful magic-link verifications."},
	{ID: carebook.MetricMagicLinkVerifyFailure, Name: "carebook_magic_link_verify_failure_total", Help: "Failed magic-link verifications."},
	{ID: carebook.MetricLoginSuccess, Name: "carebook_login_success_total", Help: "Successful password logins."},
	{ID: carebook.MetricLoginFailure, Name: "carebook_login_failure_total", Help: "Failed password logins."},
	{ID: carebook.MetricSignupSuccess, Name: "carebook_signup_success_total", Help: "Accounts created through password signup."},
	{ID: carebook.MetricSignupDuplicate, Name: "carebook_signup_duplicate_total", Help: "Signups rejected because the email was taken."},
	{ID: carebook.MetricAccountProvisioned, Name: "carebook_account_provisioned_total", Help: "Minimal accounts created on first code request."},
	{ID: carebook.MetricRateLimitHit, Name: "carebook_rate_limit_hit_total", Help: "Requests denied by a rate limiter."},
	{ID: carebook.MetricEmailDeliveryFailure, Name: "carebook_email_delivery_failure_total", Help: "Emails the gateway failed to deliver."},
	{ID: carebook.MetricTokenValidateFailure, Name: "carebook_token_validate_failure_total", Help: "Session tokens that failed validation."},
	{ID: carebook.MetricRoleChanged, Name: "carebook_role_changed_total", Help: "Role changes applied by administrators."},
}

var HistogramDefs = []HistogramDef{
	{ID: carebook.MetricVerifyLatency, Name: "carebook_verify_latency_seconds", Help: "Latency of code and magic-link verification."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for backends that
// export buckets as separate gauges.
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

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
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
