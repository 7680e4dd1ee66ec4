package salla

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGTokenStore keeps the single connected store's tokens in Postgres so the
// API server and the worker share one credential set.
type PGTokenStore struct {
	pool *pgxpool.Pool
}

// NewPGTokenStore constructs the store.
func NewPGTokenStore(pool *pgxpool.Pool) *PGTokenStore {
	return &PGTokenStore{pool: pool}
}

func (s *PGTokenStore) Load(ctx context.Context) (Token, error) {
	var token Token
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT access_token, refresh_token, token_expires_at FROM salla_settings WHERE id = 1`,
	).Scan(&token.AccessToken, &token.RefreshToken, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, ErrNotConnected
	}
	if err != nil {
		return Token{}, err
	}
	if expiresAt != nil {
		token.ExpiresAt = *expiresAt
	}
	return token, nil
}

func (s *PGTokenStore) Save(ctx context.Context, token Token) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO salla_settings (id, access_token, refresh_token, token_expires_at, updated_at)
		 VALUES (1, $1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET access_token = EXCLUDED.access_token,
		     refresh_token = EXCLUDED.refresh_token,
		     token_expires_at = EXCLUDED.token_expires_at,
		     updated_at = EXCLUDED.updated_at`,
		token.AccessToken, token.RefreshToken, token.ExpiresAt, time.Now())
	return err
}
