package server

import (
	"context"
	"sync"

	"github.com/mailgate/mailgate/internal/config"
	"github.com/mailgate/mailgate/internal/graph"
	"github.com/mailgate/mailgate/internal/instrumentation"
	"github.com/mailgate/mailgate/internal/store"
	"github.com/mailgate/mailgate/internal/token"
)

// ServerContext holds the shared state for the MCP server.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg     config.Config
	store   store.ConnectionStore
	tokens  *token.Manager
	graph   *graph.Client
	search  *graph.SearchEngine
	metrics *instrumentation.Metrics

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context around the wired
// dependencies.
func NewServerContext(ctx context.Context, cfg config.Config, st store.ConnectionStore, tokens *token.Manager, client *graph.Client, search *graph.SearchEngine) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)

	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		cfg:    cfg,
		store:  st,
		tokens: tokens,
		graph:  client,
		search: search,
	}
}

// SetMetrics attaches the metrics recorder.
func (sc *ServerContext) SetMetrics(metrics *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = metrics
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Config returns the runtime configuration.
func (sc *ServerContext) Config() config.Config {
	return sc.cfg
}

// Tokens returns the token manager.
func (sc *ServerContext) Tokens() *token.Manager {
	return sc.tokens
}

// Graph returns the Graph API client.
func (sc *ServerContext) Graph() *graph.Client {
	return sc.graph
}

// Search returns the mailbox search engine.
func (sc *ServerContext) Search() *graph.SearchEngine {
	return sc.search
}

// Metrics returns the metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// IsShutdown returns whether the server has been shut down.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context and closes the connection store.
// Safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	if sc.store != nil {
		sc.store.Close()
	}
	return nil
}
