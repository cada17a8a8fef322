// Package observability provides structured logging and Prometheus metrics
// for the routing service.
//
// This package implements:
//   - zap logger construction from configuration
//   - Request and session ID propagation into log fields
//   - A Prometheus collector exposing the telemetry counters
//   - Backend latency histograms
package observability
