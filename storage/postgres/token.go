package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/readerd/oauth/storage"
)

const accessTokenColumns = `id, token_hash, client_id, user_id, scopes, resource,
		created_at, expires_at, revoked_at, last_used_at`

const refreshTokenColumns = `id, token_hash, client_id, user_id, scopes,
		access_token_id, created_at, expires_at, revoked_at, replaced_by_id`

// SaveAccessToken persists a newly minted access token
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	query := `
		INSERT INTO oauth_access_tokens (` + accessTokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.Exec(ctx, query,
		token.ID, token.TokenHash, token.ClientID, token.UserID, token.Scopes, token.Resource,
		token.CreatedAt, token.ExpiresAt, token.RevokedAt, token.LastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("save access token: %w", err)
	}
	return nil
}

// SaveRefreshToken persists a newly minted refresh token
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	query := `
		INSERT INTO oauth_refresh_tokens (` + refreshTokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
	`
	_, err := s.db.Exec(ctx, query,
		token.ID, token.TokenHash, token.ClientID, token.UserID, token.Scopes,
		token.AccessTokenID, token.CreatedAt, token.ExpiresAt, token.RevokedAt,
		token.ReplacedByID,
	)
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// GetAccessTokenByHash retrieves an access token row by hash. Revoked and
// expired rows are returned as stored; validity policy lives in the caller.
func (s *Store) GetAccessTokenByHash(ctx context.Context, tokenHash string) (*storage.AccessToken, error) {
	query := `SELECT ` + accessTokenColumns + ` FROM oauth_access_tokens WHERE token_hash = $1`

	token := &storage.AccessToken{}
	err := s.db.QueryRow(ctx, query, tokenHash).Scan(
		&token.ID, &token.TokenHash, &token.ClientID, &token.UserID, &token.Scopes,
		&token.Resource, &token.CreatedAt, &token.ExpiresAt, &token.RevokedAt,
		&token.LastUsedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return token, nil
}

// GetRefreshTokenByHash retrieves a refresh token row by hash, scoped to the
// presenting client. Revoked rows are returned so rotation replay can be
// detected and the whole chain revoked.
func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash, clientID string) (*storage.RefreshToken, error) {
	query := `
		SELECT id, token_hash, client_id, user_id, scopes,
		       access_token_id, created_at, expires_at, revoked_at, COALESCE(replaced_by_id, '')
		FROM oauth_refresh_tokens
		WHERE token_hash = $1 AND client_id = $2
	`
	token := &storage.RefreshToken{}
	err := s.db.QueryRow(ctx, query, tokenHash, clientID).Scan(
		&token.ID, &token.TokenHash, &token.ClientID, &token.UserID, &token.Scopes,
		&token.AccessTokenID, &token.CreatedAt, &token.ExpiresAt,
		&token.RevokedAt, &token.ReplacedByID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return token, nil
}

// TouchAccessToken records when an access token was last presented
func (s *Store) TouchAccessToken(ctx context.Context, id string, when time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE oauth_access_tokens SET last_used_at = $2 WHERE id = $1`, id, when)
	if err != nil {
		return fmt.Errorf("touch access token: %w", err)
	}
	return nil
}

// RevokeAccessToken marks an access token revoked. Already-revoked tokens
// keep their original revocation time.
func (s *Store) RevokeAccessToken(ctx context.Context, id string, when time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE oauth_access_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		id, when)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

// RevokeRefreshToken marks a refresh token revoked and optionally links the
// token that replaced it, forming the rotation chain.
//
// ErrNotFound when no live row matched: under READ COMMITTED a concurrent
// rotation may have revoked the row after our SELECT saw it live, and the
// caller's transaction must abort rather than commit a second token pair.
func (s *Store) RevokeRefreshToken(ctx context.Context, id string, when time.Time, replacedByID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE oauth_refresh_tokens SET revoked_at = $2, replaced_by_id = NULLIF($3, '')
		WHERE id = $1 AND revoked_at IS NULL
	`, id, when, replacedByID)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RevokeTokensForUserClient revokes every live access and refresh token for a
// user/client pair and returns the total number of tokens revoked.
func (s *Store) RevokeTokensForUserClient(ctx context.Context, userID, clientID string, when time.Time) (int64, error) {
	accessTag, err := s.db.Exec(ctx, `
		UPDATE oauth_access_tokens SET revoked_at = $3
		WHERE user_id = $1 AND client_id = $2 AND revoked_at IS NULL
	`, userID, clientID, when)
	if err != nil {
		return 0, fmt.Errorf("revoke access tokens for user/client: %w", err)
	}

	refreshTag, err := s.db.Exec(ctx, `
		UPDATE oauth_refresh_tokens SET revoked_at = $3
		WHERE user_id = $1 AND client_id = $2 AND revoked_at IS NULL
	`, userID, clientID, when)
	if err != nil {
		return accessTag.RowsAffected(), fmt.Errorf("revoke refresh tokens for user/client: %w", err)
	}

	return accessTag.RowsAffected() + refreshTag.RowsAffected(), nil
}
