package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/readerd/oauth"
	"github.com/readerd/oauth/security"
	"github.com/readerd/oauth/storage"
)

// TokenPairParams carries the identity and scope a token pair is minted for
type TokenPairParams struct {
	ClientID string
	UserID   string
	Scopes   []string
	Resource string
}

// TokenPair is a freshly minted access/refresh token pair. The raw token
// strings appear here exactly once; storage holds only their hashes.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string // always "Bearer"
	ExpiresIn    int64  // access token lifetime in seconds
	Scope        string // space-separated granted scopes
}

// TokenData is the result of validating an access token
type TokenData struct {
	UserID    string
	ClientID  string
	Scopes    []string
	Resource  string
	ExpiresAt time.Time
}

// Response converts the pair into the RFC 6749 wire shape
func (p *TokenPair) Response() *oauth.TokenResponse {
	return &oauth.TokenResponse{
		AccessToken:  p.AccessToken,
		TokenType:    p.TokenType,
		ExpiresIn:    p.ExpiresIn,
		RefreshToken: p.RefreshToken,
		Scope:        p.Scope,
	}
}

// CreateTokens mints an access/refresh token pair. The refresh row references
// the access row so rotation can revoke both sides of the pair together.
func (s *Server) CreateTokens(ctx context.Context, params TokenPairParams) (*TokenPair, error) {
	pair, err := s.createTokens(ctx, s.store, params)
	if err != nil {
		return nil, err
	}
	s.emitTokensIssued(ctx, params)
	return pair, nil
}

// emitTokensIssued fires the issuance audit event and metric. Callers that
// mint inside a transaction emit only after it commits, so a rollback never
// audit-logs a pair that does not exist.
func (s *Server) emitTokensIssued(ctx context.Context, params TokenPairParams) {
	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(params.UserID, params.ClientID, params.Scopes)
	}
	s.metrics().RecordTokenPairIssued(ctx, params.ClientID)
}

// createTokens is the store-parametrized implementation so rotation can mint
// inside its transaction. Persists the pair only; issuance audit/metrics are
// the caller's responsibility.
func (s *Server) createTokens(ctx context.Context, store storage.Store, params TokenPairParams) (*TokenPair, error) {
	if params.ClientID == "" || params.UserID == "" {
		return nil, fmt.Errorf("client_id and user_id are required")
	}

	accessToken := security.GenerateToken()
	refreshToken := security.GenerateToken()
	now := time.Now()

	accessRecord := &storage.AccessToken{
		ID:        uuid.NewString(),
		TokenHash: security.HashToken(accessToken),
		ClientID:  params.ClientID,
		UserID:    params.UserID,
		Scopes:    params.Scopes,
		Resource:  params.Resource,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(s.Config.AccessTokenTTL) * time.Second),
	}
	refreshRecord := &storage.RefreshToken{
		ID:            uuid.NewString(),
		TokenHash:     security.HashToken(refreshToken),
		ClientID:      params.ClientID,
		UserID:        params.UserID,
		Scopes:        params.Scopes,
		AccessTokenID: accessRecord.ID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Duration(s.Config.RefreshTokenTTL) * time.Second),
	}

	if err := store.SaveAccessToken(ctx, accessRecord); err != nil {
		return nil, fmt.Errorf("failed to save access token: %w", err)
	}
	if err := store.SaveRefreshToken(ctx, refreshRecord); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.Config.AccessTokenTTL,
		Scope:        joinScope(params.Scopes),
	}, nil
}

// ValidateAccessToken checks an access token and returns its bindings. On
// success the token's last_used_at is bumped asynchronously; that write never
// affects the validation result.
func (s *Server) ValidateAccessToken(ctx context.Context, accessToken string) (*TokenData, error) {
	record, err := s.store.GetAccessTokenByHash(ctx, security.HashToken(accessToken))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.Logger.Error("Access token lookup failed", "error", err)
			return nil, oauth.ErrServerError("token validation failed")
		}
		s.metrics().RecordTokenValidation(ctx, false)
		return nil, oauth.ErrInvalidToken("invalid access token")
	}

	if record.RevokedAt != nil {
		s.metrics().RecordTokenValidation(ctx, false)
		return nil, oauth.ErrInvalidToken("invalid access token")
	}
	if security.IsExpiredWithGracePeriod(record.ExpiresAt, s.Config.clockSkewGrace()) {
		s.metrics().RecordTokenValidation(ctx, false)
		return nil, oauth.ErrInvalidToken("invalid access token")
	}

	s.touchAccessToken(record.ID)
	s.metrics().RecordTokenValidation(ctx, true)

	return &TokenData{
		UserID:    record.UserID,
		ClientID:  record.ClientID,
		Scopes:    record.Scopes,
		Resource:  record.Resource,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// touchAccessToken bumps last_used_at in the background with its own timeout
func (s *Server) touchAccessToken(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.Config.TouchTimeout)
		defer cancel()

		if err := s.store.TouchAccessToken(ctx, id, time.Now()); err != nil {
			s.Logger.Warn("Failed to update access token last_used_at", "error", err)
		}
	}()
}

// RotateRefreshToken exchanges a refresh token for a new pair, revoking the
// old pair. The lookup, mint, and revocations run inside one transaction so
// a crash mid-rotation cannot leave two live refresh tokens for the grant.
//
// Presenting an already-rotated token is treated as evidence of theft: the
// stored replaced_by_id chain identifies the rotation, and every token for
// the user/client pair is revoked.
func (s *Server) RotateRefreshToken(ctx context.Context, refreshToken, clientID string) (*TokenPair, error) {
	tokenHash := security.HashToken(refreshToken)
	now := time.Now()

	var pair *TokenPair
	var minted TokenPairParams
	var replayedUserID string

	err := s.store.WithTransaction(ctx, func(tx storage.Store) error {
		record, err := tx.GetRefreshTokenByHash(ctx, tokenHash, clientID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("refresh token lookup failed: %w", err)
			}
			return oauth.ErrInvalidGrant("invalid refresh token")
		}

		if record.RevokedAt != nil {
			if record.ReplacedByID != "" {
				// Rotated-token replay: the presenter holds a token that was
				// already exchanged once
				replayedUserID = record.UserID
			}
			return oauth.ErrInvalidGrant("invalid refresh token")
		}
		if security.IsExpiredWithGracePeriod(record.ExpiresAt, s.Config.clockSkewGrace()) {
			return oauth.ErrInvalidGrant("invalid refresh token")
		}

		params := TokenPairParams{
			ClientID: clientID,
			UserID:   record.UserID,
			Scopes:   record.Scopes,
		}
		newPair, err := s.createTokens(ctx, tx, params)
		if err != nil {
			return err
		}

		// The new refresh row was just written; find its ID to link the chain
		newRefresh, err := tx.GetRefreshTokenByHash(ctx, security.HashToken(newPair.RefreshToken), clientID)
		if err != nil {
			return fmt.Errorf("failed to read back rotated refresh token: %w", err)
		}

		if err := tx.RevokeRefreshToken(ctx, record.ID, now, newRefresh.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// A concurrent rotation revoked the row first. Abort so the
				// pair minted above rolls back; exactly one rotation wins.
				return oauth.ErrInvalidGrant("invalid refresh token")
			}
			return fmt.Errorf("failed to revoke rotated refresh token: %w", err)
		}
		if err := tx.RevokeAccessToken(ctx, record.AccessTokenID, now); err != nil {
			return fmt.Errorf("failed to revoke paired access token: %w", err)
		}

		pair = newPair
		minted = params
		return nil
	})

	if replayedUserID != "" {
		s.handleRotationReplay(ctx, replayedUserID, clientID)
	}

	if err != nil {
		var oauthErr *oauth.OAuthError
		if errors.As(err, &oauthErr) {
			if s.Auditor != nil {
				s.Auditor.LogAuthFailure("", clientID, "invalid_refresh_token")
			}
			return nil, oauthErr
		}
		s.Logger.Error("Refresh token rotation failed", "error", err, "client_id", clientID)
		return nil, oauth.ErrServerError("token rotation failed")
	}

	s.emitTokensIssued(ctx, minted)
	if s.Auditor != nil {
		s.Auditor.LogTokenRotated(minted.UserID, clientID, safeTruncate(tokenHash, 8))
	}
	s.metrics().RecordTokenRotated(ctx, clientID)

	return pair, nil
}

// handleRotationReplay revokes all tokens for the user/client pair after a
// rotated refresh token was presented again
func (s *Server) handleRotationReplay(ctx context.Context, userID, clientID string) {
	if s.allowSecurityEventLog(userID + ":" + clientID) {
		s.Logger.Error("Rotated refresh token replayed - revoking all tokens",
			"user_id", userID,
			"client_id", clientID)
	}
	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:     security.EventRotatedTokenReplayed,
			UserID:   userID,
			ClientID: clientID,
			Details: map[string]any{
				"severity": "critical",
				"action":   "all_tokens_revoked",
			},
		})
	}
	s.metrics().RecordRotationReplay(ctx, clientID)

	s.RevokeClientTokens(ctx, userID, clientID)
}

// RevokeClientTokens revokes every live token for a user/client pair.
// Best-effort: failures are logged and must never block the caller's primary
// operation.
func (s *Server) RevokeClientTokens(ctx context.Context, userID, clientID string) {
	n, err := s.store.RevokeTokensForUserClient(ctx, userID, clientID, time.Now())
	if err != nil {
		s.Logger.Error("Failed to revoke tokens for user/client",
			"error", err,
			"user_id", userID,
			"client_id", clientID)
		return
	}

	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:     security.EventClientTokensRevoked,
			UserID:   userID,
			ClientID: clientID,
			Details: map[string]any{
				"revoked_count": n,
			},
		})
	}
	s.metrics().RecordTokensRevoked(ctx, clientID, n)

	if n > 0 {
		s.Logger.Info("Revoked tokens for user/client",
			"user_id", userID,
			"client_id", clientID,
			"count", n)
	}
}
