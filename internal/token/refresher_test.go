package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRefresherFormEncoding(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"grant_type":    r.PostFormValue("grant_type"),
			"refresh_token": r.PostFormValue("refresh_token"),
			"client_id":     r.PostFormValue("client_id"),
			"client_secret": r.PostFormValue("client_secret"),
			"scope":         r.PostFormValue("scope"),
		}
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":1800,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	r := NewHTTPRefresher(srv.URL, "client-id", "client-secret")
	tok, err := r.Refresh(context.Background(), "the-refresh-token")
	require.NoError(t, err)

	assert.Equal(t, "refresh_token", gotForm["grant_type"])
	assert.Equal(t, "the-refresh-token", gotForm["refresh_token"])
	assert.Equal(t, "client-id", gotForm["client_id"])
	assert.Equal(t, "client-secret", gotForm["client_secret"])
	assert.Equal(t, DefaultScope, gotForm["scope"])

	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Equal(t, "new-refresh", tok.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), tok.Expiry, 5*time.Second)
}

func TestHTTPRefresherScopeOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Mail.ReadWrite", r.PostFormValue("scope"))
		w.Write([]byte(`{"access_token":"tok"}`))
	}))
	defer srv.Close()

	r := NewHTTPRefresher(srv.URL, "id", "secret", WithScope("Mail.ReadWrite"))
	_, err := r.Refresh(context.Background(), "rt")
	require.NoError(t, err)
}

func TestHTTPRefresherDefaultExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No expires_in in the response
		w.Write([]byte(`{"access_token":"tok"}`))
	}))
	defer srv.Close()

	r := NewHTTPRefresher(srv.URL, "id", "secret")
	tok, err := r.Refresh(context.Background(), "rt")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, 5*time.Second)
}

func TestHTTPRefresherRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked rt-secret-value"}`))
	}))
	defer srv.Close()

	r := NewHTTPRefresher(srv.URL, "id", "secret")
	_, err := r.Refresh(context.Background(), "rt-secret-value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	// Provider error bodies are never surfaced
	assert.NotContains(t, err.Error(), "rt-secret-value")
	assert.NotContains(t, err.Error(), "invalid_grant")
}

func TestHTTPRefresherMissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	r := NewHTTPRefresher(srv.URL, "id", "secret")
	_, err := r.Refresh(context.Background(), "rt")
	assert.Error(t, err)
}

func TestHTTPRefresherNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	r := NewHTTPRefresher(srv.URL, "id", "secret")
	_, err := r.Refresh(context.Background(), "rt")
	assert.Error(t, err)
}
