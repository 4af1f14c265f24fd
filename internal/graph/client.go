package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mailgate/mailgate/internal/instrumentation"
	"github.com/mailgate/mailgate/internal/logging"
	"github.com/mailgate/mailgate/internal/token"
)

// BaseURL is the Microsoft Graph v1.0 API root.
const BaseURL = "https://graph.microsoft.com/v1.0"

// ErrAuthMissing is returned when a request is attempted without an access
// token in the context.
var ErrAuthMissing = errors.New("no access token in request context")

// UpstreamError is a non-401 error response from the Graph API. Only the
// status code is carried: response bodies may quote request parameters.
type UpstreamError struct {
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("graph api returned status %d", e.Status)
}

// TransportError wraps network-level failures reaching the Graph API.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("graph api unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type contextKey int

const accessTokenKey contextKey = iota

// WithAccessToken returns a context carrying the access token for Graph
// requests.
func WithAccessToken(ctx context.Context, accessToken string) context.Context {
	return context.WithValue(ctx, accessTokenKey, accessToken)
}

func accessTokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(accessTokenKey).(string)
	return tok, ok && tok != ""
}

// Client issues authenticated GET requests against the Graph API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API root, used by tests.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(metrics *instrumentation.Metrics) ClientOption {
	return func(c *Client) { c.metrics = metrics }
}

// NewClient creates a Graph client.
func NewClient(logger *slog.Logger, timeout time.Duration, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs an authenticated GET and decodes the JSON response into out.
//
// When endpoint is a full URL (a pagination continuation link), it is used
// verbatim and params are ignored: the link already encodes every query
// parameter of the original request.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, out any) error {
	accessToken, ok := accessTokenFromContext(ctx)
	if !ok {
		return ErrAuthMissing
	}

	var reqURL string
	if strings.HasPrefix(endpoint, "http") {
		reqURL = endpoint
	} else {
		reqURL = c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(ctx, endpoint, logging.StatusError, start)
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.record(ctx, endpoint, logging.StatusError, start)
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("graph api rejected token: %w", token.ErrReauthNeeded)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		c.record(ctx, endpoint, logging.StatusError, start)
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &UpstreamError{Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.record(ctx, endpoint, logging.StatusError, start)
		return fmt.Errorf("decode response: %w", err)
	}

	c.record(ctx, endpoint, logging.StatusSuccess, start)
	return nil
}

// GetPaginated follows @odata.nextLink continuation links until maxCount
// messages are collected or pages run out. The result is truncated to
// maxCount: a page can overshoot, but no extra page is requested once the
// cap is reached.
func (c *Client) GetPaginated(ctx context.Context, endpoint string, params url.Values, maxCount int) ([]Message, error) {
	var all []Message
	currentEndpoint := endpoint
	currentParams := params

	for len(all) < maxCount {
		var page ListResponse
		if err := c.Get(ctx, currentEndpoint, currentParams, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Value...)

		if page.NextLink == "" || len(all) >= maxCount {
			break
		}

		// The continuation link carries all query parameters
		currentEndpoint = page.NextLink
		currentParams = nil
	}

	if len(all) > maxCount {
		all = all[:maxCount]
	}
	return all, nil
}

func (c *Client) record(ctx context.Context, endpoint, status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordGraphOperation(ctx, operationLabel(endpoint), status, time.Since(start))
	}
}

// operationLabel collapses endpoints into low-cardinality metric labels.
func operationLabel(endpoint string) string {
	switch {
	case strings.Contains(endpoint, "/mailFolders") && strings.Contains(endpoint, "/messages"):
		return "list_messages"
	case strings.Contains(endpoint, "mailFolders"):
		return "resolve_folder"
	case strings.Contains(endpoint, "/messages/") || strings.Contains(endpoint, "me/messages/"):
		return "get_message"
	default:
		return "other"
	}
}
