package internaldefs

import (
	"github.com/MrEthical07/tokenflow"
)

// CounterDef names one tokenflow counter for exporters.
type CounterDef struct {
	ID   tokenflow.MetricID
	Name string
	Help string
}

// HistogramDef names one tokenflow histogram for exporters.
type HistogramDef struct {
	ID   tokenflow.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in rendering order.
var CounterDefs = []CounterDef{
	{ID: tokenflow.MetricRefreshSuccess, Name: "tokenflow_refresh_success_total", Help: "Refresh handler invocations that succeeded."},
	{ID: tokenflow.MetricRefreshFailure, Name: "tokenflow_refresh_failure_total", Help: "Refresh handler invocations that failed or panicked."},
	{ID: tokenflow.MetricWaiterEnqueued, Name: "tokenflow_waiter_enqueued_total", Help: "Requests suspended behind an in-flight refresh."},
	{ID: tokenflow.MetricWaiterReleased, Name: "tokenflow_waiter_released_total", Help: "Suspended requests released after a refresh settled."},
	{ID: tokenflow.MetricWaiterCancelled, Name: "tokenflow_waiter_cancelled_total", Help: "Suspended requests removed after their context ended."},
	{ID: tokenflow.MetricReplay, Name: "tokenflow_replay_total", Help: "Requests replayed after a refresh."},
	{ID: tokenflow.MetricReplayExhausted, Name: "tokenflow_replay_exhausted_total", Help: "Requests failed after reaching the replay ceiling."},
	{ID: tokenflow.MetricLoginObserved, Name: "tokenflow_login_observed_total", Help: "Login exchanges passed to the login interceptor."},
	{ID: tokenflow.MetricLogoutObserved, Name: "tokenflow_logout_observed_total", Help: "Logout exchanges passed to the logout interceptor."},
	{ID: tokenflow.MetricAssignTokenFailure, Name: "tokenflow_assign_token_failure_total", Help: "Token assignment or interceptor failures."},
	{ID: tokenflow.MetricVisitorBypass, Name: "tokenflow_visitor_bypass_total", Help: "Visitor requests passed through untouched."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: tokenflow.MetricRefreshLatency, Name: "tokenflow_refresh_latency_seconds", Help: "Refresh handler latency histogram."},
}

// Gauges and counters read outside MetricsSnapshot.
const (
	EventsDroppedName   = "tokenflow_events_dropped_total"
	EventsDroppedHelp   = "Lifecycle events dropped on a full dispatcher buffer."
	RefreshInFlightName = "tokenflow_refresh_in_flight"
	RefreshInFlightHelp = "1 while a refresh handler is outstanding, else 0."
	WaitersName         = "tokenflow_waiters"
	WaitersHelp         = "Requests currently suspended behind an in-flight refresh."
)

// HistogramBounds are the Prometheus le labels of the eight buckets.
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

// HistogramBoundSuffix are instrument-name-safe forms of HistogramBounds.
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

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
