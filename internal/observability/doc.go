// Package observability builds the service's zap logger and OpenTelemetry
// tracer provider, and instruments inbound and outbound HTTP.
package observability
