package server

import (
	"context"
	"errors"

	"github.com/readerd/oauth"
)

// ErrConsentRequired is returned by Authorize when no sufficient consent
// grant exists. The embedding application owns the consent UI: it shows the
// prompt, calls RecordConsent on approval, and retries the authorization.
var ErrConsentRequired = errors.New("user consent required")

// AuthorizeRequest carries the parameters of an authorization request after
// the embedding application has authenticated the user
type AuthorizeRequest struct {
	ClientID            string
	UserID              string
	RedirectURI         string
	Scope               string // space-separated requested scopes
	CodeChallenge       string
	CodeChallengeMethod string
	Resource            string
	State               string
}

// AuthorizeResult is a successful authorization: the code to deliver on the
// redirect, plus the state and granted scopes
type AuthorizeResult struct {
	Code   string
	State  string
	Scopes []string
}

// TokenRequest carries the parameters of a token endpoint request
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	ClientID     string
	ClientSecret string
}

// Authorize runs the authorization flow for an authenticated user: resolve
// the client, validate the redirect URI, PKCE parameters, and scopes, check
// consent, and issue a code. ErrConsentRequired signals that the caller must
// obtain consent and retry.
func (s *Server) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if req.UserID == "" {
		return nil, oauth.ErrServerError("authorize called without an authenticated user")
	}

	client, err := s.ResolveClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	// Redirect URI errors must never redirect; the caller renders them
	if err := validateRedirectURIRegistered(client, req.RedirectURI); err != nil {
		s.Logger.Warn("Authorization rejected: redirect URI not registered",
			"client_id", client.ClientID,
			"redirect_uri", req.RedirectURI)
		return nil, oauth.ErrInvalidRedirectURI(err.Error())
	}

	if err := validateCodeChallenge(req.CodeChallenge, req.CodeChallengeMethod); err != nil {
		return nil, oauth.ErrInvalidRequest(err.Error())
	}

	if !containsString(client.GrantTypes, GrantTypeAuthorizationCode) {
		return nil, oauth.ErrUnauthorizedClient("client is not authorized for the authorization_code grant")
	}

	scopes := parseScope(req.Scope)
	if err := s.validateRequestedScopes(scopes); err != nil {
		return nil, oauth.ErrInvalidScope(err.Error())
	}
	if err := clientAllowsScopes(client.Scopes, scopes); err != nil {
		return nil, oauth.ErrInvalidScope(err.Error())
	}

	ok, err := s.HasConsent(ctx, req.UserID, client.ClientID, scopes)
	if err != nil {
		s.Logger.Error("Consent lookup failed", "error", err)
		return nil, oauth.ErrServerError("authorization failed")
	}
	if !ok {
		return nil, ErrConsentRequired
	}

	code, err := s.CreateAuthorizationCode(ctx, AuthorizationCodeParams{
		ClientID:      client.ClientID,
		UserID:        req.UserID,
		RedirectURI:   req.RedirectURI,
		Scopes:        scopes,
		CodeChallenge: req.CodeChallenge,
		Resource:      req.Resource,
		State:         req.State,
	})
	if err != nil {
		var oauthErr *oauth.OAuthError
		if errors.As(err, &oauthErr) {
			return nil, oauthErr
		}
		s.Logger.Error("Failed to issue authorization code", "error", err)
		return nil, oauth.ErrServerError("authorization failed")
	}

	return &AuthorizeResult{
		Code:   code,
		State:  req.State,
		Scopes: scopes,
	}, nil
}

// Exchange handles the token endpoint: authorization_code redemption and
// refresh_token rotation. Confidential clients must authenticate; public
// clients rely on PKCE.
func (s *Server) Exchange(ctx context.Context, req TokenRequest) (*oauth.TokenResponse, error) {
	client, err := s.ResolveClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	if !client.IsPublic {
		if err := s.ValidateClientSecret(ctx, client.ClientID, req.ClientSecret); err != nil {
			return nil, err
		}
	}

	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		grant, err := s.RedeemAuthorizationCode(ctx, req.Code, client.ClientID, req.RedirectURI, req.CodeVerifier)
		if err != nil {
			return nil, err
		}

		pair, err := s.CreateTokens(ctx, TokenPairParams{
			ClientID: client.ClientID,
			UserID:   grant.UserID,
			Scopes:   grant.Scopes,
			Resource: grant.Resource,
		})
		if err != nil {
			s.Logger.Error("Failed to mint tokens after code redemption", "error", err)
			return nil, oauth.ErrServerError("token issuance failed")
		}
		return pair.Response(), nil

	case GrantTypeRefreshToken:
		if req.RefreshToken == "" {
			return nil, oauth.ErrInvalidRequest("refresh_token is required")
		}

		pair, err := s.RotateRefreshToken(ctx, req.RefreshToken, client.ClientID)
		if err != nil {
			return nil, err
		}
		return pair.Response(), nil

	default:
		return nil, oauth.ErrUnsupportedGrantType("unsupported grant_type: " + req.GrantType)
	}
}
