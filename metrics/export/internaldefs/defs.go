package internaldefs

import (
	"strconv"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter the exporters publish, in export order.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricLoginSuccess, Name: "goguard_login_success_total", Help: "Logins that authenticated directly."},
	{ID: goGuard.MetricLoginFailure, Name: "goguard_login_failure_total", Help: "Logins rejected for a wrong password."},
	{ID: goGuard.MetricLoginUnknownUser, Name: "goguard_login_unknown_user_total", Help: "Logins naming an unknown user."},
	{ID: goGuard.MetricLoginBanned, Name: "goguard_login_banned_total", Help: "Logins refused by or ending in a temporary ban."},
	{ID: goGuard.MetricLoginUnrecognizedIP, Name: "goguard_login_unrecognized_ip_total", Help: "Logins from an address not on record."},
	{ID: goGuard.MetricIPConfirmationSuccess, Name: "goguard_ip_confirmation_success_total", Help: "Confirmed new addresses."},
	{ID: goGuard.MetricIPConfirmationFailure, Name: "goguard_ip_confirmation_failure_total", Help: "Failed address confirmations."},
	{ID: goGuard.MetricOTPIssued, Name: "goguard_otp_issued_total", Help: "One-time codes delivered."},
	{ID: goGuard.MetricOTPDeliveryFailure, Name: "goguard_otp_delivery_failure_total", Help: "One-time codes that could not be delivered."},
	{ID: goGuard.MetricOTPRejected, Name: "goguard_otp_rejected_total", Help: "Wrong one-time code submissions."},
	{ID: goGuard.MetricOTPExhausted, Name: "goguard_otp_exhausted_total", Help: "Challenges discarded after the attempt cap."},
	{ID: goGuard.MetricOTPResendRejected, Name: "goguard_otp_resend_rejected_total", Help: "Resend requests refused by the cooldown."},
	{ID: goGuard.MetricRegistrationSuccess, Name: "goguard_registration_success_total", Help: "Completed registrations."},
	{ID: goGuard.MetricRegistrationFailure, Name: "goguard_registration_failure_total", Help: "Registration steps that failed."},
	{ID: goGuard.MetricPasswordResetSuccess, Name: "goguard_password_reset_success_total", Help: "Completed password resets."},
	{ID: goGuard.MetricPasswordResetFailure, Name: "goguard_password_reset_failure_total", Help: "Password reset steps that failed."},
	{ID: goGuard.MetricSessionOpened, Name: "goguard_session_opened_total", Help: "Opened client sessions."},
	{ID: goGuard.MetricSessionClosed, Name: "goguard_session_closed_total", Help: "Closed or expired client sessions."},
}

var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricLoginLatency, Name: "goguard_login_latency_seconds", Help: "Time spent in Login, including store and notifier calls."},
	{ID: goGuard.MetricDeliveryLatency, Name: "goguard_code_delivery_seconds", Help: "Time the notifier took to send a code."},
}

// Buckets is one histogram's counts in goGuard.LatencyBuckets order.
type Buckets [goGuard.LatencyBucketCount]uint64

// HistogramBounds are the "le" labels of goGuard.LatencyBuckets, in seconds.
var HistogramBounds = bucketLabels(func(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}, "+Inf")

func bucketLabels(format func(time.Duration) string, last string) []string {
	out := make([]string, 0, goGuard.LatencyBucketCount)
	for _, d := range goGuard.LatencyBuckets {
		out = append(out, format(d))
	}
	return append(out, last)
}

// Cumulative copies raw into running totals. Missing buckets count as zero
// and extra ones are ignored.
func Cumulative(raw []uint64) Buckets {
	var out Buckets
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
