// Package otel publishes engine metrics through an OpenTelemetry Meter.
// Counters become Int64ObservableCounter instruments and each latency
// bucket an Int64ObservableGauge, all fed by one callback that reads a
// snapshot per collection. The caller owns the MeterProvider.
package otel
