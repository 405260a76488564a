// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the server. Metrics implements core.Observer so runs, steps and
// agent calls report into it directly.
package observability
