// Package otel publishes deskauth engine counters as OpenTelemetry
// observable instruments.
//
// Each counter becomes an Int64ObservableCounter. Authenticate latency is an
// Int64ObservableGauge of cumulative bucket counts keyed by the "le"
// attribute. One callback reads the engine snapshot per collection; the
// caller owns the MeterProvider.
package otel
