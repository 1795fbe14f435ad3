package internaldefs

import (
	"github.com/zengzjie/food-delivery-sass/auth"
)

// Member is one labeled series of a counter family.
type Member struct {
	ID    auth.MetricID
	Value string
}

// Family groups engine counters that differ only by one label. A family
// with an empty Label has exactly one member and renders unlabeled.
type Family struct {
	Name    string
	Help    string
	Label   string
	Members []Member
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   auth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for dispatcher drops.
const AuditDroppedName = "fd_auth_audit_dropped_total"

// Families lists every exported counter family in render order.
var Families = []Family{
	{
		Name:  "fd_auth_gate_decisions_total",
		Help:  "Auth gate decisions by outcome.",
		Label: "outcome",
		Members: []Member{
			{auth.MetricGateAuthorized, "authorized"},
			{auth.MetricGatePublic, "public"},
			{auth.MetricGateUnauthenticated, "unauthenticated"},
			{auth.MetricGateSuperseded, "superseded"},
			{auth.MetricGateExpired, "expired"},
			{auth.MetricGateMalformed, "malformed"},
			{auth.MetricGateWrongPurpose, "wrong_purpose"},
			{auth.MetricGateForbidden, "forbidden"},
		},
	},
	{
		Name:  "fd_auth_login_total",
		Help:  "Login attempts by result.",
		Label: "result",
		Members: []Member{
			{auth.MetricLoginSuccess, "success"},
			{auth.MetricLoginFailure, "invalid_credentials"},
			{auth.MetricLoginRateLimited, "rate_limited"},
		},
	},
	{
		Name:  "fd_auth_refresh_total",
		Help:  "Token refreshes by result. rotation_lost counts rotated or superseded refresh tokens.",
		Label: "result",
		Members: []Member{
			{auth.MetricRefreshSuccess, "success"},
			{auth.MetricRefreshFailure, "failed"},
			{auth.MetricRefreshRotationLost, "rotation_lost"},
		},
	},
	{
		Name:  "fd_auth_session_events_total",
		Help:  "Session registry writes and removals.",
		Label: "event",
		Members: []Member{
			{auth.MetricSessionCreated, "created"},
			{auth.MetricSessionInvalidated, "invalidated"},
		},
	},
	{
		Name:  "fd_auth_registration_total",
		Help:  "Registration requests by result.",
		Label: "result",
		Members: []Member{
			{auth.MetricRegistrationRequested, "requested"},
			{auth.MetricRegistrationDuplicate, "duplicate"},
		},
	},
	{
		Name:  "fd_auth_activation_total",
		Help:  "Account activations by result.",
		Label: "result",
		Members: []Member{
			{auth.MetricActivationSuccess, "success"},
			{auth.MetricActivationFailure, "failure"},
		},
	},
	{
		Name:  "fd_auth_password_reset_total",
		Help:  "Password reset steps by result.",
		Label: "result",
		Members: []Member{
			{auth.MetricPasswordResetRequest, "requested"},
			{auth.MetricPasswordResetSuccess, "success"},
			{auth.MetricPasswordResetFailure, "failure"},
		},
	},
	{Name: "fd_auth_logout_total", Help: "Logout operations.", Members: []Member{{ID: auth.MetricLogout}}},
	{Name: "fd_auth_account_deleted_total", Help: "Accounts deleted.", Members: []Member{{ID: auth.MetricAccountDeleted}}},
	{Name: "fd_auth_mail_failure_total", Help: "Mail deliveries that failed.", Members: []Member{{ID: auth.MetricMailFailure}}},
	{Name: "fd_auth_rate_limit_hit_total", Help: "Throttle checks that denied a request.", Members: []Member{{ID: auth.MetricRateLimitHit}}},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: auth.MetricAuthorizeLatency, Name: "fd_auth_authorize_latency_seconds", Help: "Engine.Authorize latency."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets.
var HistogramBounds = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// NormalizeBuckets copies raw into a fixed eight-bucket array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, n := range raw {
		running += n
		out[i] = running
	}
	return out
}
