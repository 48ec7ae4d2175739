// Package otel publishes deviceauth engine metrics through an OpenTelemetry
// meter.
//
// [New] registers one observable counter per engine counter and, per
// latency histogram, an observable gauge of cumulative bucket counts
// labelled by "le" plus a count gauge. A single callback reads the engine
// snapshot on each collection. The caller owns the MeterProvider.
package otel
