package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultScope is requested on every refresh so the returned token covers
// mailbox reads.
const DefaultScope = "offline_access User.Read Mail.Read"

// defaultExpiresIn is assumed when the provider response omits expires_in.
const defaultExpiresIn = 3600

// HTTPRefresher performs refresh_token grants against an OAuth2 token
// endpoint.
type HTTPRefresher struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	client       *http.Client
}

// RefresherOption configures an HTTPRefresher.
type RefresherOption func(*HTTPRefresher)

// WithScope overrides the default refresh scope.
func WithScope(scope string) RefresherOption {
	return func(r *HTTPRefresher) { r.scope = scope }
}

// WithHTTPClient overrides the HTTP client used for the token endpoint.
func WithHTTPClient(client *http.Client) RefresherOption {
	return func(r *HTTPRefresher) { r.client = client }
}

// NewHTTPRefresher creates a refresher for the given token endpoint and
// client credentials.
func NewHTTPRefresher(tokenURL, clientID, clientSecret string, opts ...RefresherOption) *HTTPRefresher {
	r := &HTTPRefresher{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        DefaultScope,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// Refresh implements Refresher. A non-200 response or a response without an
// access token is a rejection: the caller treats it as needing re-auth.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {r.clientID},
		"client_secret": {r.clientSecret},
		"scope":         {r.scope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// The body may carry provider error codes but also echoes of the
		// request, so only the status code is surfaced.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access token")
	}

	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}

	return &oauth2.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		Expiry:       time.Now().UTC().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}
