// Package prometheus renders tokenauth counters in the Prometheus text exposition
// format without a client library registry.
//
// Counters are named tokenauth_*_total and the access verification histogram is
// tokenauth_verify_latency_seconds. Callers mount [Exporter.Handler] themselves.
package prometheus
