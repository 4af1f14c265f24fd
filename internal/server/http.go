package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// HTTPServer exposes the MCP server over streamable HTTP together with the
// health endpoints.
type HTTPServer struct {
	httpServer *http.Server
	health     *HealthChecker
	addr       string
}

// NewHTTPServer builds the HTTP transport for the MCP server. The /mcp
// endpoint serves the MCP protocol; /health, /healthz, and /readyz serve
// monitors and probes.
//
// The X-User-ID header is only honored when TRUST_X_USER_ID is set. Without
// it no caller identity reaches the context and every tool call fails closed.
func NewHTTPServer(mcpSrv *mcpserver.MCPServer, sc *ServerContext, addr, version string) *HTTPServer {
	streamableOpts := []mcpserver.StreamableHTTPOption{
		mcpserver.WithEndpointPath("/mcp"),
	}
	if sc.Config().TrustUserIDHeader {
		streamableOpts = append(streamableOpts, mcpserver.WithHTTPContextFunc(UserIDHTTPContextFunc))
	}
	streamable := mcpserver.NewStreamableHTTPServer(mcpSrv, streamableOpts...)

	health := NewHealthChecker(sc, version)

	mux := http.NewServeMux()
	mux.Handle("/mcp", streamable)
	health.RegisterHealthEndpoints(mux)

	return &HTTPServer{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		health: health,
		addr:   addr,
	}
}

// Health returns the health checker so the lifecycle can flip readiness.
func (s *HTTPServer) Health() *HealthChecker {
	return s.health
}

// Addr returns the configured listen address.
func (s *HTTPServer) Addr() string {
	return s.addr
}

// Start serves until the listener fails or the server is shut down.
func (s *HTTPServer) Start() error {
	slog.Info("starting MCP HTTP server", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains and stops the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	slog.Info("shutting down MCP HTTP server")
	return s.httpServer.Shutdown(ctx)
}
