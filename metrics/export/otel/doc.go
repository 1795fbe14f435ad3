// Package otel binds engine metrics to an OpenTelemetry Meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per metric family.
// The family label (outcome, result or event) becomes an attribute. Each
// histogram gets an "le"-attributed bucket gauge and a count gauge. One
// callback reads [auth.Engine.MetricsSnapshot] per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
