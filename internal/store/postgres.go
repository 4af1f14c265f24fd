package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds pool settings for the connection store.
type PostgresConfig struct {
	DatabaseURL  string
	MinConns     int32
	MaxConns     int32
	QueryTimeout time.Duration
}

// PostgresStore implements ConnectionStore on a pgx connection pool.
type PostgresStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns
	// Simple protocol keeps the pool compatible with transaction-mode
	// PgBouncer, which rejects prepared statements.
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &PostgresStore{pool: pool, queryTimeout: timeout}, nil
}

const activeConnectionSQL = `
SELECT id, user_id, provider, access_token, refresh_token, expires_at,
       provider_metadata, is_active, created_at, updated_at, last_used_at
FROM oauth_connections
WHERE user_id = $1 AND provider = $2 AND is_active = TRUE
ORDER BY created_at DESC
LIMIT 1`

// ActiveConnection implements ConnectionStore.
func (s *PostgresStore) ActiveConnection(ctx context.Context, userID, provider string) (*OAuthConnection, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var conn OAuthConnection
	err := s.pool.QueryRow(ctx, activeConnectionSQL, userID, provider).Scan(
		&conn.ID,
		&conn.UserID,
		&conn.Provider,
		&conn.AccessToken,
		&conn.RefreshToken,
		&conn.ExpiresAt,
		&conn.ProviderMetadata,
		&conn.IsActive,
		&conn.CreatedAt,
		&conn.UpdatedAt,
		&conn.LastUsedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoConnection
	}
	if err != nil {
		return nil, fmt.Errorf("query active connection: %w", err)
	}
	return &conn, nil
}

const updateTokensSQL = `
UPDATE oauth_connections
SET access_token = $1, refresh_token = $2, expires_at = $3, updated_at = NOW()
WHERE id = $4`

// UpdateTokens implements ConnectionStore.
func (s *PostgresStore) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, updateTokensSQL, accessToken, refreshToken, expiresAt, id)
	if err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoConnection
	}
	return nil
}

const touchLastUsedSQL = `
UPDATE oauth_connections SET last_used_at = NOW() WHERE id = $1`

// TouchLastUsed implements ConnectionStore.
func (s *PostgresStore) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, touchLastUsedSQL, id); err != nil {
		return fmt.Errorf("touch last used: %w", err)
	}
	return nil
}

// Close implements ConnectionStore.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
