package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/mailgate/mailgate/internal/instrumentation"
	"github.com/mailgate/mailgate/internal/logging"
	"github.com/mailgate/mailgate/internal/store"
)

// Provider is the OAuth provider identifier used in connection rows.
const Provider = "microsoft"

// refreshWindow is how close to expiry a token may get before it is
// refreshed rather than handed out.
const refreshWindow = 5 * time.Minute

// Token is a decrypted access token ready for use against the provider API.
type Token struct {
	AccessToken string
	UserID      string
	ExpiresAt   time.Time
}

// Refresher exchanges a refresh token for a new token at the provider.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Cipher is the subset of the token cipher the manager needs.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Manager hands out valid access tokens for users, refreshing transparently.
type Manager struct {
	store     store.ConnectionStore
	cipher    Cipher
	refresher Refresher
	logger    *slog.Logger
	metrics   *instrumentation.Metrics

	// now is replaceable for expiry-window tests.
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*userLock
}

// userLock serializes token operations for one user. refs counts holders and
// waiters so the registry entry can be evicted once nobody needs it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a Manager.
func NewManager(s store.ConnectionStore, cipher Cipher, refresher Refresher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     s,
		cipher:    cipher,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[string]*userLock),
	}
}

// SetMetrics attaches an optional metrics recorder.
func (m *Manager) SetMetrics(metrics *instrumentation.Metrics) {
	m.metrics = metrics
}

// acquireUser takes the per-user lock, creating the registry entry on first
// use. The ref count covers waiters too, so an entry is only evicted once no
// goroutine holds or wants it.
func (m *Manager) acquireUser(userID string) *userLock {
	m.mu.Lock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = &userLock{}
		m.locks[userID] = lock
	}
	lock.refs++
	m.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (m *Manager) releaseUser(userID string, lock *userLock) {
	lock.mu.Unlock()

	m.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(m.locks, userID)
	}
	m.mu.Unlock()
}

// GetToken returns a valid access token for the user, refreshing it first if
// it expires within the refresh window. The per-user lock spans the whole
// call so concurrent callers for one user serialize on a single refresh.
func (m *Manager) GetToken(ctx context.Context, userID string) (*Token, error) {
	lock := m.acquireUser(userID)
	defer m.releaseUser(userID, lock)

	logger := m.logger.With(logging.KeyUserHash, logging.AnonymizeUser(userID))

	conn, err := m.store.ActiveConnection(ctx, userID, Provider)
	if err != nil {
		if errors.Is(err, store.ErrNoConnection) {
			logger.Info("no active connection for user")
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("load connection: %w", err)
	}

	accessToken, err := m.cipher.Decrypt(conn.AccessToken)
	if err != nil {
		// The cipher error is dropped on purpose so no ciphertext detail can
		// reach the logs.
		logger.Error("stored access token failed to decrypt")
		return nil, ErrDecryptionFailed
	}

	expiresAt := conn.ExpiresAt.UTC()
	if expiresAt.Sub(m.now().UTC()) > refreshWindow {
		m.touchLastUsed(ctx, logger, conn.ID)
		return &Token{AccessToken: accessToken, UserID: userID, ExpiresAt: expiresAt}, nil
	}

	refreshToken, err := m.cipher.Decrypt(conn.RefreshToken)
	if err != nil {
		logger.Error("stored refresh token failed to decrypt")
		return nil, ErrDecryptionFailed
	}

	logger.Info("access token near expiry, refreshing",
		slog.Time("expires_at", expiresAt))

	refreshed, err := m.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		m.recordRefresh(ctx, logging.StatusError)
		logger.Warn("token refresh failed", logging.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrReauthNeeded, err)
	}

	// Some identity providers omit the refresh token from the refresh
	// response. The previously stored one stays valid in that case.
	newRefreshToken := refreshed.RefreshToken
	if newRefreshToken == "" {
		newRefreshToken = refreshToken
	}

	encAccess, err := m.cipher.Encrypt(refreshed.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	encRefresh, err := m.cipher.Encrypt(newRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt refresh token: %w", err)
	}

	newExpiry := refreshed.Expiry.UTC()
	if err := m.store.UpdateTokens(ctx, conn.ID, encAccess, encRefresh, newExpiry); err != nil {
		return nil, fmt.Errorf("persist refreshed tokens: %w", err)
	}

	m.recordRefresh(ctx, logging.StatusSuccess)
	logger.Info("token refreshed",
		slog.Time("expires_at", newExpiry),
		slog.String("token", logging.SanitizeToken(refreshed.AccessToken)))

	m.touchLastUsed(ctx, logger, conn.ID)
	return &Token{AccessToken: refreshed.AccessToken, UserID: userID, ExpiresAt: newExpiry}, nil
}

// touchLastUsed is best effort. A failed usage timestamp must not block the
// token from being handed out.
func (m *Manager) touchLastUsed(ctx context.Context, logger *slog.Logger, id uuid.UUID) {
	if err := m.store.TouchLastUsed(ctx, id); err != nil {
		logger.Warn("failed to record token usage", logging.Err(err))
	}
}

func (m *Manager) recordRefresh(ctx context.Context, status string) {
	if m.metrics != nil {
		m.metrics.RecordOAuthTokenRefresh(ctx, status)
	}
}
