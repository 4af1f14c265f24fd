package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mailgate/mailgate/internal/config"
	"github.com/mailgate/mailgate/internal/crypto"
	"github.com/mailgate/mailgate/internal/graph"
	"github.com/mailgate/mailgate/internal/instrumentation"
	"github.com/mailgate/mailgate/internal/logging"
	"github.com/mailgate/mailgate/internal/server"
	"github.com/mailgate/mailgate/internal/store"
	"github.com/mailgate/mailgate/internal/token"
	"github.com/mailgate/mailgate/internal/tools/mail_tools"
)

// MetricsConfig holds the metrics server settings taken from flags.
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

func newServeCmd() *cobra.Command {
	var (
		transport string
		httpAddr  string
		debugMode bool
		userID    string

		metricsConfig MetricsConfig
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing read-only
Outlook mailbox tools backed by Microsoft Graph.

Supports multiple transport types:
  - stdio: Standard input/output (local development)
  - streamable-http: Streamable HTTP transport (default, for deployments)

Identity:
  HTTP Transport:
    The caller identity arrives in the X-User-ID header, injected by the
    identity sidecar in front of this service. The server never accepts
    identity claims from the MCP payload itself.

  STDIO Transport:
    Pass --user-id to act as a fixed user. Intended for local development
    against a development credential store.

Configuration comes from the environment (a local .env file is honored):
  DATABASE_URL, ENCRYPTION_KEY, MICROSOFT_CLIENT_ID, MICROSOFT_CLIENT_SECRET
  are required. See the README for the full list.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if transport == "stdio" && userID == "" {
				return fmt.Errorf("--user-id is required with the stdio transport")
			}
			return runServe(transport, httpAddr, debugMode, userID, metricsConfig)
		},
	}

	cmd.Flags().StringVarP(&transport, "transport", "t", "streamable-http", "Transport type (stdio or streamable-http)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "Address for HTTP transport (default: SERVER_HOST:SERVER_PORT from environment)")
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&userID, "user-id", "", "Fixed user identity for the stdio transport")
	cmd.Flags().BoolVar(&metricsConfig.Enabled, "metrics-enabled", false, "Enable the Prometheus metrics server")
	cmd.Flags().StringVar(&metricsConfig.Addr, "metrics-addr", server.DefaultMetricsAddr, "Address for the metrics server")

	return cmd
}

func runServe(transport, httpAddr string, debugMode bool, userID string, metricsConfig MetricsConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logLevel := cfg.LogLevel
	if debugMode {
		logLevel = "debug"
	}
	// Logs go to stderr so the stdio transport keeps stdout for the protocol.
	logger := logging.Setup(os.Stderr, logLevel)

	// Load metrics config from environment if not set via flags
	if !metricsConfig.Enabled {
		if os.Getenv("METRICS_ENABLED") == "true" {
			metricsConfig.Enabled = true
		}
	}
	if metricsConfig.Addr == "" || metricsConfig.Addr == server.DefaultMetricsAddr {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			metricsConfig.Addr = addr
		}
	}

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation configuration: %w", err)
	}

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			if transport != "stdio" {
				log.Printf("Error during instrumentation shutdown: %v", err)
			}
		}
	}()

	// Start metrics server if enabled and not in stdio mode
	var metricsServer *server.MetricsServer
	if transport != "stdio" && metricsConfig.Enabled && provider.Enabled() {
		var err error
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsConfig.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Use ready channel to confirm metrics server started successfully
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			log.Printf("Metrics server started on %s", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}
	}

	// Wire the credential store, token cipher, and Microsoft refresher
	connStore, err := store.NewPostgresStore(shutdownCtx, store.PostgresConfig{
		DatabaseURL:  cfg.DatabaseURL,
		MinConns:     cfg.DBMinConns,
		MaxConns:     cfg.DBMaxConns,
		QueryTimeout: cfg.DBQueryTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to credential store: %w", err)
	}

	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		connStore.Close()
		return err
	}
	cipher, err := crypto.NewTokenCipher(key)
	if err != nil {
		connStore.Close()
		return fmt.Errorf("failed to initialize token cipher: %w", err)
	}

	refresher := token.NewHTTPRefresher(cfg.TokenURL(), cfg.MicrosoftClientID, cfg.MicrosoftClientSecret)
	tokens := token.NewManager(connStore, cipher, refresher, logger)

	var graphOpts []graph.ClientOption
	if provider.Enabled() {
		graphOpts = append(graphOpts, graph.WithMetrics(provider.Metrics()))
	}
	graphClient := graph.NewClient(logger, cfg.GraphTimeout, graphOpts...)
	searchEngine := graph.NewSearchEngine(graphClient, logger, cfg.EmailListFields)

	serverContext := server.NewServerContext(shutdownCtx, cfg, connStore, tokens, graphClient, searchEngine)

	// Set metrics on server context for tool instrumentation
	if provider.Enabled() {
		serverContext.SetMetrics(provider.Metrics())
		tokens.SetMetrics(provider.Metrics())
	}
	defer func() {
		// Shutdown metrics server first
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error during metrics server shutdown: %v", err)
			}
		}
		if err := serverContext.Shutdown(); err != nil {
			if transport != "stdio" {
				log.Printf("Error during server context shutdown: %v", err)
			}
		}
	}()

	// Create MCP server. Middlewares run outermost-first, so metrics wraps
	// auth and observes its rejections too.
	mcpSrv := mcpserver.NewMCPServer("mailgate", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithToolHandlerMiddleware(server.ToolMetricsMiddleware(serverContext.Metrics())),
		mcpserver.WithToolHandlerMiddleware(server.AuthMiddleware(tokens, serverContext.Metrics(), logger)),
	)

	if err := mail_tools.RegisterMailTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register mail tools: %w", err)
	}

	switch transport {
	case "stdio":
		return runStdioServer(mcpSrv, userID)
	case "streamable-http":
		if httpAddr == "" {
			httpAddr = cfg.ListenAddr()
		}
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, httpAddr)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", transport)
	}
}

// runStdioServer serves MCP over stdin/stdout as a single fixed user.
func runStdioServer(mcpSrv *mcpserver.MCPServer, userID string) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		err := mcpserver.ServeStdio(mcpSrv,
			mcpserver.WithStdioContextFunc(func(ctx context.Context) context.Context {
				return server.WithUserID(ctx, userID)
			}),
		)
		if err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// runStreamableHTTPServer serves MCP over streamable HTTP until the shutdown
// context fires, then drains in-flight requests.
func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, serverContext *server.ServerContext, addr string) error {
	httpSrv := server.NewHTTPServer(mcpSrv, serverContext, addr, version)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	httpSrv.Health().SetReady(true)
	log.Printf("Starting mailgate MCP server on %s", addr)

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-ctx.Done():
		drainCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(drainCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	}
}
