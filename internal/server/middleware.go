package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mailgate/mailgate/internal/graph"
	"github.com/mailgate/mailgate/internal/instrumentation"
	"github.com/mailgate/mailgate/internal/logging"
	"github.com/mailgate/mailgate/internal/token"
)

// UserIDHeader is the header the identity sidecar injects with the
// authenticated caller's identifier.
const UserIDHeader = "X-User-ID"

// User-facing authentication error messages.
const (
	msgNoUserID      = "Authentication required. No X-User-ID header found."
	msgNotConnected  = "No Microsoft connection found. Please connect your Outlook account."
	msgDecryptFailed = "Token decryption failed. Please reconnect."
	msgReauthNeeded  = "Token refresh failed. Please reconnect."
	msgAuthFailed    = "Authentication failed."
)

type userIDKey struct{}

// WithUserID returns a context carrying the caller's user identifier.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the caller's user identifier, if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey{}).(string)
	return userID, ok && userID != ""
}

// UserIDHTTPContextFunc lifts the X-User-ID header into the request context
// for the tool middleware to consume.
func UserIDHTTPContextFunc(ctx context.Context, r *http.Request) context.Context {
	if userID := r.Header.Get(UserIDHeader); userID != "" {
		return WithUserID(ctx, userID)
	}
	return ctx
}

// TokenSource resolves a user identifier to a usable access token.
// *token.Manager is the production implementation.
type TokenSource interface {
	GetToken(ctx context.Context, userID string) (*token.Token, error)
}

// AuthMiddleware resolves the caller's Microsoft access token before every
// tool call and places it in the context for the Graph client. Token errors
// map to the user-facing messages the connection UI expects.
func AuthMiddleware(tokens TokenSource, metrics *instrumentation.Metrics, logger *slog.Logger) mcpserver.ToolHandlerMiddleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
		return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			userID, ok := UserIDFromContext(ctx)
			if !ok {
				return mcp.NewToolResultError(msgNoUserID), nil
			}

			tok, err := tokens.GetToken(ctx, userID)
			if err != nil {
				recordAuth(ctx, metrics, logging.StatusError)
				logger.Warn("token resolution failed",
					slog.String(logging.KeyUserHash, logging.AnonymizeUser(userID)),
					logging.Tool(request.Params.Name),
					logging.Err(err))
				return mcp.NewToolResultError(authErrorMessage(err)), nil
			}

			recordAuth(ctx, metrics, logging.StatusSuccess)
			return next(graph.WithAccessToken(ctx, tok.AccessToken), request)
		}
	}
}

// authErrorMessage maps token errors to user-facing text. Unknown errors get
// a generic message so internals never leak to clients.
func authErrorMessage(err error) string {
	switch {
	case errors.Is(err, token.ErrNotConnected):
		return msgNotConnected
	case errors.Is(err, token.ErrDecryptionFailed):
		return msgDecryptFailed
	case errors.Is(err, token.ErrReauthNeeded):
		return msgReauthNeeded
	default:
		return msgAuthFailed
	}
}

func recordAuth(ctx context.Context, metrics *instrumentation.Metrics, status string) {
	if metrics != nil {
		metrics.RecordAuthResolution(ctx, status)
	}
}

// ToolMetricsMiddleware records invocation counts and durations for every
// tool call.
func ToolMetricsMiddleware(metrics *instrumentation.Metrics) mcpserver.ToolHandlerMiddleware {
	return func(next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
		return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			start := time.Now()
			result, err := next(ctx, request)

			if metrics != nil {
				status := logging.StatusSuccess
				if err != nil || (result != nil && result.IsError) {
					status = logging.StatusError
				}
				metrics.RecordToolInvocation(ctx, request.Params.Name, status, time.Since(start))
			}

			return result, err
		}
	}
}
