// Package instrumentation provides OpenTelemetry metrics and tracing for
// mailgate.
//
// The Provider wires a meter provider and tracer provider based on
// environment configuration. Metrics cover HTTP traffic, Microsoft Graph
// operations, OAuth token refreshes, and MCP tool invocations. Metric labels
// stay low-cardinality: user identifiers never appear as label values.
package instrumentation
