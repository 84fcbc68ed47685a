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

// AuthorizationCodeParams carries everything an authorization code is bound
// to at issuance
type AuthorizationCodeParams struct {
	ClientID      string
	UserID        string
	RedirectURI   string
	Scopes        []string
	CodeChallenge string // S256 challenge; PKCE is mandatory
	Resource      string // optional RFC 8707 resource indicator
	State         string // opaque client state, returned on redirect
}

// CodeGrant is what a successful redemption yields: the identity and scope
// the tokens must be minted with
type CodeGrant struct {
	UserID   string
	Scopes   []string
	Resource string
}

// CreateAuthorizationCode issues a single-use authorization code. The raw
// code is returned exactly once; only its SHA-256 hash is stored.
func (s *Server) CreateAuthorizationCode(ctx context.Context, params AuthorizationCodeParams) (string, error) {
	if params.ClientID == "" || params.UserID == "" || params.RedirectURI == "" {
		return "", fmt.Errorf("client_id, user_id, and redirect_uri are required")
	}
	if err := validateCodeChallenge(params.CodeChallenge, PKCEMethodS256); err != nil {
		return "", err
	}

	code := security.GenerateAuthorizationCode()
	now := time.Now()

	record := &storage.AuthorizationCode{
		ID:                  uuid.NewString(),
		CodeHash:            security.HashToken(code),
		ClientID:            params.ClientID,
		UserID:              params.UserID,
		RedirectURI:         params.RedirectURI,
		Scopes:              params.Scopes,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: PKCEMethodS256,
		Resource:            params.Resource,
		State:               params.State,
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Duration(s.Config.AuthorizationCodeTTL) * time.Second),
	}

	if err := s.store.SaveAuthorizationCode(ctx, record); err != nil {
		return "", fmt.Errorf("failed to save authorization code: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:     security.EventAuthorizationCodeIssued,
			UserID:   params.UserID,
			ClientID: params.ClientID,
			Details: map[string]any{
				"scopes": params.Scopes,
			},
		})
	}
	s.metrics().RecordCodeIssued(ctx, params.ClientID)

	return code, nil
}

// RedeemAuthorizationCode validates and consumes an authorization code.
//
// The sequence is lookup, PKCE verification, then an atomic compare-and-set
// consume. A failed PKCE check therefore does NOT burn the code: the
// legitimate client can retry with the correct verifier while the code lives.
// Under concurrent redemption exactly one caller wins the CAS; every other
// path collapses into a uniform invalid_grant so callers cannot probe which
// binding failed.
func (s *Server) RedeemAuthorizationCode(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (*CodeGrant, error) {
	codeHash := security.HashToken(code)
	now := time.Now()

	record, err := s.store.GetAuthorizationCode(ctx, codeHash, clientID, redirectURI, now)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.Logger.Error("Authorization code lookup failed", "error", err)
			return nil, oauth.ErrServerError("code redemption failed")
		}

		s.Logger.Debug("Authorization code validation failed",
			"reason", "no matching live code",
			"client_id", clientID,
			"code_prefix", safeTruncate(code, 8))
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", clientID, "invalid_authorization_code")
		}
		s.metrics().RecordCodeRedeemFailed(ctx, clientID, "not_found")
		return nil, oauth.ErrInvalidGrant("invalid authorization code")
	}

	if err := s.validatePKCE(record.CodeChallenge, codeVerifier); err != nil {
		s.Logger.Debug("PKCE validation failed",
			"reason", err.Error(),
			"client_id", clientID,
			"code_prefix", safeTruncate(code, 8))
		if s.Auditor != nil {
			s.Auditor.LogEvent(security.Event{
				Type:     security.EventPKCEValidationFailed,
				UserID:   record.UserID,
				ClientID: clientID,
				Details: map[string]any{
					"reason": err.Error(),
				},
			})
			s.Auditor.LogAuthFailure(record.UserID, clientID, "pkce_validation_failed")
		}
		s.metrics().RecordPKCEValidationFailed(ctx, clientID)
		return nil, oauth.ErrInvalidGrant("invalid authorization code")
	}

	consumed, err := s.store.ConsumeAuthorizationCode(ctx, codeHash, clientID, redirectURI, now)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.Logger.Error("Authorization code consume failed", "error", err)
			return nil, oauth.ErrServerError("code redemption failed")
		}

		// The code was live moments ago, so the CAS lost a race or the code
		// was redeemed between lookup and consume. Treat as replay.
		if s.allowSecurityEventLog(record.UserID + ":" + clientID) {
			s.Logger.Warn("Authorization code consumed concurrently",
				"user_id", record.UserID,
				"client_id", clientID,
				"code_prefix", safeTruncate(code, 8))
		}
		if s.Auditor != nil {
			s.Auditor.LogEvent(security.Event{
				Type:     security.EventAuthorizationCodeReplayed,
				UserID:   record.UserID,
				ClientID: clientID,
			})
		}
		s.metrics().RecordCodeReplay(ctx, clientID)
		return nil, oauth.ErrInvalidGrant("invalid authorization code")
	}

	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:     security.EventAuthorizationCodeRedeemed,
			UserID:   consumed.UserID,
			ClientID: clientID,
			Details: map[string]any{
				"scopes": consumed.Scopes,
			},
		})
	}
	s.metrics().RecordCodeRedeemed(ctx, clientID)

	return &CodeGrant{
		UserID:   consumed.UserID,
		Scopes:   consumed.Scopes,
		Resource: consumed.Resource,
	}, nil
}

// CleanupExpiredAuthorizationCodes removes expired codes. Intended to run
// periodically from the embedding application.
func (s *Server) CleanupExpiredAuthorizationCodes(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.store.DeleteExpiredAuthorizationCodes(ctx, start)
	s.metrics().RecordStorageOperation(ctx, "delete_expired_authorization_codes",
		float64(time.Since(start).Milliseconds()))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired authorization codes: %w", err)
	}
	if n > 0 {
		s.Logger.Debug("Deleted expired authorization codes", "count", n)
	}
	return n, nil
}
