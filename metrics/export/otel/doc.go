// Package otel binds goGuard engine metrics to an OpenTelemetry Meter.
//
// [NewExporter] registers one observable counter per engine counter and one
// observable gauge per cumulative histogram bucket. A single callback reads
// the engine snapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
