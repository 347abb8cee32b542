package internaldefs

import (
	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/internal/notify"
)

// Source is what an exporter reads on every scrape or collection.
// *goIdentity.Engine implements it.
type Source interface {
	MetricsSnapshot() goIdentity.MetricsSnapshot
	AuditDropped() uint64
	NotificationStats() notify.Stats
}

type CounterDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// SourceCounter is a counter kept outside the engine snapshot.
type SourceCounter struct {
	Name string
	Help string
	Read func(Source) uint64
}

var CounterDefs = []CounterDef{
	{ID: goIdentity.MetricLoginSuccess, Name: "goidentity_login_success_total", Help: "Successful password logins."},
	{ID: goIdentity.MetricLoginFailure, Name: "goidentity_login_failure_total", Help: "Failed password logins."},
	{ID: goIdentity.MetricLoginRateLimited, Name: "goidentity_login_rate_limited_total", Help: "Logins refused by the throttle."},
	{ID: goIdentity.MetricPasswordUpgraded, Name: "goidentity_password_upgraded_total", Help: "Stored hashes rehashed with current parameters."},
	{ID: goIdentity.MetricRegisterSuccess, Name: "goidentity_register_success_total", Help: "Accounts registered with a password."},
	{ID: goIdentity.MetricRegisterFailure, Name: "goidentity_register_failure_total", Help: "Rejected registrations."},
	{ID: goIdentity.MetricSessionCreated, Name: "goidentity_session_created_total", Help: "Issued sessions."},
	{ID: goIdentity.MetricSessionValidateSuccess, Name: "goidentity_session_validate_success_total", Help: "Session cookies accepted."},
	{ID: goIdentity.MetricSessionValidateFailure, Name: "goidentity_session_validate_failure_total", Help: "Session cookies rejected."},
	{ID: goIdentity.MetricLogout, Name: "goidentity_logout_total", Help: "Single-session logouts."},
	{ID: goIdentity.MetricLogoutAll, Name: "goidentity_logout_all_total", Help: "Revocations of every session of a user."},
	{ID: goIdentity.MetricOAuthBegin, Name: "goidentity_oauth_begin_total", Help: "OAuth handshakes started."},
	{ID: goIdentity.MetricOAuthSuccess, Name: "goidentity_oauth_success_total", Help: "OAuth callbacks that issued a session."},
	{ID: goIdentity.MetricOAuthFailure, Name: "goidentity_oauth_failure_total", Help: "OAuth callbacks that failed."},
	{ID: goIdentity.MetricOAuthAccountCreated, Name: "goidentity_oauth_account_created_total", Help: "Accounts created by an OAuth sign-in."},
	{ID: goIdentity.MetricOAuthAccountLinked, Name: "goidentity_oauth_account_linked_total", Help: "Provider identities linked to an existing account."},
	{ID: goIdentity.MetricPasswordResetRequest, Name: "goidentity_password_reset_request_total", Help: "Reset tokens issued."},
	{ID: goIdentity.MetricPasswordResetConfirmSuccess, Name: "goidentity_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: goIdentity.MetricPasswordResetConfirmFailure, Name: "goidentity_password_reset_confirm_failure_total", Help: "Rejected reset confirmations."},
	{ID: goIdentity.MetricPasswordResetReplay, Name: "goidentity_password_reset_replay_total", Help: "Redemptions of an already used reset token."},
	{ID: goIdentity.MetricNotificationDropped, Name: "goidentity_notification_dropped_total", Help: "Reset notifications dropped because the queue was full."},
}

var HistogramDefs = []HistogramDef{
	{ID: goIdentity.MetricValidateLatency, Name: "goidentity_validate_latency_seconds", Help: "Session validation latency."},
}

var SourceCounters = []SourceCounter{
	{
		Name: "goidentity_audit_dropped_total",
		Help: "Audit events dropped by dispatcher backpressure.",
		Read: func(s Source) uint64 { return s.AuditDropped() },
	},
	{
		Name: "goidentity_notification_sent_total",
		Help: "Reset notifications delivered by the notifier.",
		Read: func(s Source) uint64 { return s.NotificationStats().Sent },
	},
	{
		Name: "goidentity_notification_failed_total",
		Help: "Reset notifications the notifier returned an error for.",
		Read: func(s Source) uint64 { return s.NotificationStats().Failed },
	},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's eight
// latency buckets.
var HistogramBounds = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// HistogramBoundSuffix spells HistogramBounds as instrument name suffixes.
var HistogramBoundSuffix = []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// NormalizeBuckets copies raw into a fixed array, zero-filling short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into the running totals
// Prometheus expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
