package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/readerd/oauth"
	"github.com/readerd/oauth/storage"
)

// HasConsent reports whether the user holds an active consent grant for the
// client covering every requested scope. A grant for a superset suffices; a
// revoked grant never does.
func (s *Server) HasConsent(ctx context.Context, userID, clientID string, requestedScopes []string) (bool, error) {
	grant, err := s.store.GetConsent(ctx, userID, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("consent lookup failed: %w", err)
	}

	if grant.RevokedAt != nil {
		return false, nil
	}

	return scopesCover(grant.Scopes, requestedScopes), nil
}

// RecordConsent records the user's approval of the client's scopes. Granting
// again replaces the scope set and clears any prior revocation.
func (s *Server) RecordConsent(ctx context.Context, userID, clientID string, scopes []string) error {
	now := time.Now()
	grant := &storage.ConsentGrant{
		ID:        uuid.NewString(),
		UserID:    userID,
		ClientID:  clientID,
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.UpsertConsent(ctx, grant); err != nil {
		return fmt.Errorf("failed to record consent: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogConsentRecorded(userID, clientID, scopes)
	}
	s.metrics().RecordConsentGranted(ctx, clientID)

	return nil
}

// RevokeConsent withdraws the user's consent for the client and revokes the
// client's outstanding tokens. The token cascade is best-effort: consent is
// the source of truth and its revocation must not fail on token cleanup.
func (s *Server) RevokeConsent(ctx context.Context, userID, clientID string) error {
	if err := s.store.RevokeConsent(ctx, userID, clientID, time.Now()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return oauth.ErrInvalidRequest("no consent grant to revoke")
		}
		return fmt.Errorf("failed to revoke consent: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogConsentRevoked(userID, clientID)
	}
	s.metrics().RecordConsentRevoked(ctx, clientID)

	s.RevokeClientTokens(ctx, userID, clientID)

	return nil
}
