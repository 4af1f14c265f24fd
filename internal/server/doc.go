// Package server wires the MCP server to its transports and holds the
// shared runtime state.
//
// The trust model follows the sidecar pattern: an identity proxy in front of
// this service authenticates the caller and injects an X-User-ID header.
// The HTTP context function lifts that header into the request context, and
// the tool middleware resolves it to a Microsoft access token before any
// tool handler runs.
package server
