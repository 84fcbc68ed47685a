package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/readerd/oauth/storage"
)

const authCodeColumns = `id, code_hash, client_id, user_id, redirect_uri, scopes,
		code_challenge, code_challenge_method, resource, state, created_at, expires_at, used_at`

// SaveAuthorizationCode persists a newly issued authorization code
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	query := `
		INSERT INTO oauth_authorization_codes (` + authCodeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.Exec(ctx, query,
		code.ID, code.CodeHash, code.ClientID, code.UserID, code.RedirectURI, code.Scopes,
		code.CodeChallenge, code.CodeChallengeMethod, code.Resource, code.State,
		code.CreatedAt, code.ExpiresAt, code.UsedAt,
	)
	if err != nil {
		return fmt.Errorf("save authorization code: %w", err)
	}
	return nil
}

// GetAuthorizationCode looks up an unredeemed, unexpired code by its hash.
// The client_id and redirect_uri bindings are part of the lookup key, so a
// code presented with the wrong binding behaves exactly like a missing code.
func (s *Store) GetAuthorizationCode(ctx context.Context, codeHash, clientID, redirectURI string, now time.Time) (*storage.AuthorizationCode, error) {
	query := `
		SELECT ` + authCodeColumns + `
		FROM oauth_authorization_codes
		WHERE code_hash = $1 AND client_id = $2 AND redirect_uri = $3
		  AND used_at IS NULL AND expires_at > $4
	`
	code := &storage.AuthorizationCode{}
	err := s.db.QueryRow(ctx, query, codeHash, clientID, redirectURI, now).Scan(
		&code.ID, &code.CodeHash, &code.ClientID, &code.UserID, &code.RedirectURI, &code.Scopes,
		&code.CodeChallenge, &code.CodeChallengeMethod, &code.Resource, &code.State,
		&code.CreatedAt, &code.ExpiresAt, &code.UsedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return code, nil
}

// ConsumeAuthorizationCode marks a code as used in a single atomic statement.
// The WHERE clause rechecks used_at IS NULL, so concurrent redemption attempts
// race on the row update and exactly one caller gets the code back.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, codeHash, clientID, redirectURI string, now time.Time) (*storage.AuthorizationCode, error) {
	query := `
		UPDATE oauth_authorization_codes SET used_at = $4
		WHERE code_hash = $1 AND client_id = $2 AND redirect_uri = $3
		  AND used_at IS NULL AND expires_at > $4
		RETURNING ` + authCodeColumns + `
	`
	code := &storage.AuthorizationCode{}
	err := s.db.QueryRow(ctx, query, codeHash, clientID, redirectURI, now).Scan(
		&code.ID, &code.CodeHash, &code.ClientID, &code.UserID, &code.RedirectURI, &code.Scopes,
		&code.CodeChallenge, &code.CodeChallengeMethod, &code.Resource, &code.State,
		&code.CreatedAt, &code.ExpiresAt, &code.UsedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return code, nil
}

// DeleteExpiredAuthorizationCodes removes codes past their expiry and returns
// how many rows were deleted. Consumed codes are kept until they expire so
// replay attempts remain distinguishable from unknown codes in audit logs.
func (s *Store) DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM oauth_authorization_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired authorization codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
