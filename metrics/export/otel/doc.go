// Package otel binds tokenauth counters to OpenTelemetry observable instruments.
//
// [New] registers one Int64ObservableCounter per counter and a cumulative gauge per
// histogram bucket. A single callback reads the engine snapshot on every collection,
// so the exporter never mutates engine state. Callers own the MeterProvider.
package otel
