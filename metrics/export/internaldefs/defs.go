package internaldefs

import (
	goAuthClient "github.com/MrEthical07/goAuthClient"
)

type CounterDef struct {
	ID   goAuthClient.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   goAuthClient.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported session counter in output order.
var CounterDefs = []CounterDef{
	{ID: goAuthClient.MetricLoginSuccess, Name: "goauthclient_login_success_total", Help: "Successful logins."},
	{ID: goAuthClient.MetricLoginFailure, Name: "goauthclient_login_failure_total", Help: "Logins rejected or failed."},
	{ID: goAuthClient.MetricRefreshSuccess, Name: "goauthclient_refresh_success_total", Help: "Refresh calls that installed a new access credential."},
	{ID: goAuthClient.MetricRefreshFailure, Name: "goauthclient_refresh_failure_total", Help: "Refresh calls that failed and ended the session."},
	{ID: goAuthClient.MetricRefreshShared, Name: "goauthclient_refresh_shared_total", Help: "Callers that joined a refresh already in flight."},
	{ID: goAuthClient.MetricRefreshSuperseded, Name: "goauthclient_refresh_superseded_total", Help: "Refresh results discarded after a newer login or logout."},
	{ID: goAuthClient.MetricRestoreSuccess, Name: "goauthclient_restore_success_total", Help: "Silent restores that produced a session."},
	{ID: goAuthClient.MetricRestoreFailure, Name: "goauthclient_restore_failure_total", Help: "Silent restores that ended unauthenticated."},
	{ID: goAuthClient.MetricLogout, Name: "goauthclient_logout_total", Help: "Logouts."},
	{ID: goAuthClient.MetricLogoutNotifyFailure, Name: "goauthclient_logout_notify_failure_total", Help: "Logouts whose server notification failed."},
	{ID: goAuthClient.MetricForcedLogout, Name: "goauthclient_forced_logout_total", Help: "Local logouts caused by a lost session."},
	{ID: goAuthClient.MetricRequestRetried, Name: "goauthclient_request_retried_total", Help: "API requests re-issued after a refresh."},
	{ID: goAuthClient.MetricAuditDropped, Name: "goauthclient_audit_dropped_total", Help: "Audit events dropped because the buffer was full."},
}

var HistogramDefs = []HistogramDef{
	{ID: goAuthClient.MetricRefreshLatency, Name: "goauthclient_refresh_latency_seconds", Help: "Refresh round-trip latency."},
}

// HistogramBounds are the upper bounds of the refresh latency buckets.
var HistogramBounds = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// HistogramBoundSuffix names each bucket in instrument names.
var HistogramBoundSuffix = []string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
