// Package prometheus renders tokenflow metrics in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] reads an [tokenflow.Authenticator] and exposes an
// [http.Handler]. Counters are named tokenflow_*_total, the refresh latency
// histogram is tokenflow_refresh_latency_seconds, and two gauges report the
// live coordinator state.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate authenticator state.
package prometheus
