package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/readerd/oauth/storage"
)

const consentColumns = `id, user_id, client_id, scopes, created_at, updated_at, revoked_at`

// GetConsent retrieves the consent grant for a user/client pair, revoked or not
func (s *Store) GetConsent(ctx context.Context, userID, clientID string) (*storage.ConsentGrant, error) {
	query := `SELECT ` + consentColumns + ` FROM oauth_consent_grants WHERE user_id = $1 AND client_id = $2`

	grant := &storage.ConsentGrant{}
	err := s.db.QueryRow(ctx, query, userID, clientID).Scan(
		&grant.ID, &grant.UserID, &grant.ClientID, &grant.Scopes,
		&grant.CreatedAt, &grant.UpdatedAt, &grant.RevokedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return grant, nil
}

// UpsertConsent records a consent grant. A second grant for the same
// user/client pair replaces the scope set and clears any prior revocation.
func (s *Store) UpsertConsent(ctx context.Context, grant *storage.ConsentGrant) error {
	query := `
		INSERT INTO oauth_consent_grants (` + consentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, client_id) DO UPDATE
		SET scopes = EXCLUDED.scopes, updated_at = EXCLUDED.updated_at, revoked_at = NULL
	`
	_, err := s.db.Exec(ctx, query,
		grant.ID, grant.UserID, grant.ClientID, grant.Scopes,
		grant.CreatedAt, grant.UpdatedAt, grant.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert consent: %w", err)
	}
	return nil
}

// RevokeConsent marks a consent grant revoked. Returns storage.ErrNotFound
// if no live grant exists for the pair.
func (s *Store) RevokeConsent(ctx context.Context, userID, clientID string, when time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE oauth_consent_grants SET revoked_at = $3, updated_at = $3
		WHERE user_id = $1 AND client_id = $2 AND revoked_at IS NULL
	`, userID, clientID, when)
	if err != nil {
		return fmt.Errorf("revoke consent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
