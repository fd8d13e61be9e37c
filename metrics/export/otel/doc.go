// Package otel publishes carebook Engine metrics as OpenTelemetry observable
// instruments.
//
// [NewExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per latency bucket. A single callback reads
// Engine.MetricsSnapshot on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
