package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgate/mailgate/internal/token"
)

type stubTokenSource struct {
	token *token.Token
	err   error
	calls int
}

func (s *stubTokenSource) GetToken(_ context.Context, userID string) (*token.Token, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	tok := *s.token
	tok.UserID = userID
	return &tok, nil
}

func callRequest(name string) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestUserIDHTTPContextFunc(t *testing.T) {
	r := httptest.NewRequest("POST", "/mcp", nil)
	r.Header.Set(UserIDHeader, "user-42")

	ctx := UserIDHTTPContextFunc(context.Background(), r)
	userID, ok := UserIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-42", userID)
}

func TestUserIDHTTPContextFuncMissingHeader(t *testing.T) {
	r := httptest.NewRequest("POST", "/mcp", nil)

	ctx := UserIDHTTPContextFunc(context.Background(), r)
	_, ok := UserIDFromContext(ctx)
	assert.False(t, ok)
}

func TestAuthMiddlewareMissingUser(t *testing.T) {
	source := &stubTokenSource{}
	mw := AuthMiddleware(source, nil, nil)

	handler := mw(func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t.Error("handler should not run without identity")
		return mcp.NewToolResultText("ok"), nil
	})

	result, err := handler(context.Background(), callRequest("list_emails"))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Authentication required. No X-User-ID header found.", resultText(t, result))
	assert.Zero(t, source.calls)
}

func TestAuthMiddlewareErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "not connected",
			err:     token.ErrNotConnected,
			message: "No Microsoft connection found. Please connect your Outlook account.",
		},
		{
			name:    "decryption failed",
			err:     token.ErrDecryptionFailed,
			message: "Token decryption failed. Please reconnect.",
		},
		{
			name:    "reauth needed",
			err:     token.ErrReauthNeeded,
			message: "Token refresh failed. Please reconnect.",
		},
		{
			name:    "wrapped reauth",
			err:     errors.Join(token.ErrReauthNeeded, errors.New("status 400")),
			message: "Token refresh failed. Please reconnect.",
		},
		{
			name:    "unknown error stays generic",
			err:     errors.New("pq: connection reset with secret dsn"),
			message: "Authentication failed.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := AuthMiddleware(&stubTokenSource{err: tt.err}, nil, nil)
			handler := mw(func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				t.Error("handler should not run when token resolution fails")
				return nil, nil
			})

			result, err := handler(WithUserID(context.Background(), "user-1"), callRequest("list_emails"))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Equal(t, tt.message, resultText(t, result))
		})
	}
}

func TestAuthMiddlewareInjectsToken(t *testing.T) {
	source := &stubTokenSource{token: &token.Token{
		AccessToken: "resolved-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	mw := AuthMiddleware(source, nil, nil)

	var sawToken bool
	handler := mw(func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// The handler context must satisfy the Graph client's auth check
		sawToken = true
		return mcp.NewToolResultText("ok"), nil
	})

	result, err := handler(WithUserID(context.Background(), "user-1"), callRequest("read_email"))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.True(t, sawToken)
	assert.Equal(t, 1, source.calls)
}

func TestToolMetricsMiddlewarePassesThrough(t *testing.T) {
	mw := ToolMetricsMiddleware(nil)

	handler := mw(func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("done"), nil
	})

	result, err := handler(context.Background(), callRequest("list_emails"))
	require.NoError(t, err)
	assert.Equal(t, "done", resultText(t, result))
}

func TestMiddlewareChainOrder(t *testing.T) {
	source := &stubTokenSource{token: &token.Token{AccessToken: "tok"}}

	var order []string
	auth := AuthMiddleware(source, nil, nil)
	metricsMW := ToolMetricsMiddleware(nil)

	inner := mcpserver.ToolHandlerFunc(func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		order = append(order, "handler")
		return mcp.NewToolResultText("ok"), nil
	})

	// Metrics wraps auth so failed auth still counts as an invocation
	handler := metricsMW(auth(inner))

	_, err := handler(WithUserID(context.Background(), "user-1"), callRequest("list_emails"))
	require.NoError(t, err)
	assert.Equal(t, []string{"handler"}, order)
}
