package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoConnection is returned when a user has no active connection for the
// requested provider.
var ErrNoConnection = errors.New("no active connection")

// OAuthConnection is one stored provider connection for a user. Token fields
// hold ciphertext produced by the token layer, never plaintext.
type OAuthConnection struct {
	ID               uuid.UUID
	UserID           string
	Provider         string
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time
	ProviderMetadata json.RawMessage
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastUsedAt       *time.Time
}

// ConnectionStore is the persistence interface the token layer depends on.
type ConnectionStore interface {
	// ActiveConnection returns the most recently created active connection
	// for the user and provider, or ErrNoConnection.
	ActiveConnection(ctx context.Context, userID, provider string) (*OAuthConnection, error)

	// UpdateTokens replaces the stored token ciphertext and expiry for a
	// connection after a successful refresh.
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error

	// TouchLastUsed records that the connection's token was handed out.
	TouchLastUsed(ctx context.Context, id uuid.UUID) error

	// Close releases the underlying connection pool.
	Close()
}
