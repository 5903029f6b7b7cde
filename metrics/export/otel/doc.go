// Package otel publishes tokenflow metrics through OpenTelemetry observable
// instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per tokenflow counter,
// an Int64ObservableGauge per histogram bucket plus count and sum instruments,
// and, for an [tokenflow.Authenticator], gauges for the live coordinator
// state. One callback reads the metrics snapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate authenticator state.
package otel
