package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/readerd/oauth"
	"github.com/readerd/oauth/security"
	"github.com/readerd/oauth/storage"
)

// supportedGrantTypes is the set of grant types this server issues
var supportedGrantTypes = map[string]bool{
	GrantTypeAuthorizationCode: true,
	GrantTypeRefreshToken:      true,
}

// supportedAuthMethods is the set of token endpoint auth methods accepted at
// registration
var supportedAuthMethods = map[string]bool{
	TokenEndpointAuthMethodNone:  true,
	TokenEndpointAuthMethodBasic: true,
	TokenEndpointAuthMethodPost:  true,
}

// RegisterClient registers a new OAuth client per RFC 7591. Validation runs
// in a fixed order so the first failing rule determines the error code:
// redirect URIs, auth method, grant types, response types, scopes. On success
// the client is persisted and a confidential client's secret is returned
// exactly once; only its bcrypt hash is stored.
func (s *Server) RegisterClient(ctx context.Context, req *oauth.ClientRegistrationRequest) (*oauth.ClientRegistrationResponse, *oauth.OAuthError) {
	if req == nil {
		return nil, oauth.ErrInvalidClientMetadata("registration request is required")
	}

	if len(req.RedirectURIs) == 0 {
		return nil, s.rejectRegistration(oauth.ErrInvalidRedirectURI("at least one redirect_uri is required"))
	}
	for _, uri := range req.RedirectURIs {
		if err := validateRedirectURIFormat(uri); err != nil {
			return nil, s.rejectRegistration(oauth.ErrInvalidRedirectURI(err.Error()))
		}
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = TokenEndpointAuthMethodNone
	}
	if !supportedAuthMethods[authMethod] {
		return nil, s.rejectRegistration(oauth.ErrInvalidClientMetadata(
			fmt.Sprintf("unsupported token_endpoint_auth_method: %s", authMethod)))
	}
	public := authMethod == TokenEndpointAuthMethodNone

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{GrantTypeAuthorizationCode}
	}
	var grantedGrantTypes []string
	for _, gt := range grantTypes {
		if supportedGrantTypes[gt] {
			grantedGrantTypes = append(grantedGrantTypes, gt)
		}
	}
	if len(grantedGrantTypes) == 0 {
		return nil, s.rejectRegistration(oauth.ErrInvalidClientMetadata("no supported grant types requested"))
	}

	responseTypes := req.ResponseTypes
	if hasGrantType(grantedGrantTypes, GrantTypeAuthorizationCode) && !containsString(responseTypes, "code") {
		responseTypes = append(responseTypes, "code")
	}

	// Unknown scopes are dropped; an empty intersection stores nil, which
	// means the client may request any supported scope. Registration is not
	// the enforcement point for scopes.
	scopes := intersectScopes(parseScope(req.Scope), s.Config.SupportedScopes)

	clientID := security.GenerateToken()
	clientSecret, secretHash, err := generateClientSecret(public)
	if err != nil {
		s.Logger.Error("Failed to generate client secret", "error", err)
		return nil, oauth.ErrServerError("client registration failed")
	}

	now := time.Now()
	client := &storage.Client{
		ID:                      uuid.NewString(),
		ClientID:                clientID,
		Name:                    req.ClientName,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              grantedGrantTypes,
		ResponseTypes:           responseTypes,
		Scopes:                  scopes,
		Public:                  public,
		SecretHash:              secretHash,
		TokenEndpointAuthMethod: authMethod,
		ClientURI:               req.ClientURI,
		LogoURI:                 req.LogoURI,
		Contacts:                req.Contacts,
		TOSURI:                  req.TOSURI,
		PolicyURI:               req.PolicyURI,
		SoftwareID:              req.SoftwareID,
		SoftwareVersion:         req.SoftwareVersion,
		CreatedAt:               now,
	}

	if err := s.store.SaveClient(ctx, client); err != nil {
		s.Logger.Error("Failed to save client", "error", err)
		return nil, oauth.ErrServerError("client registration failed")
	}

	if s.Auditor != nil {
		s.Auditor.LogClientRegistered(clientID, public)
	}
	s.metrics().RecordClientRegistered(ctx, public)

	s.Logger.Info("Registered new OAuth client",
		"client_id", clientID,
		"client_name", client.Name,
		"public", public,
		"token_endpoint_auth_method", authMethod)

	return &oauth.ClientRegistrationResponse{
		ClientID:                clientID,
		ClientSecret:            clientSecret,
		ClientIDIssuedAt:        now.Unix(),
		ClientSecretExpiresAt:   0,
		RedirectURIs:            client.RedirectURIs,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              grantedGrantTypes,
		ResponseTypes:           responseTypes,
		ClientName:              client.Name,
		ClientURI:               client.ClientURI,
		LogoURI:                 client.LogoURI,
		Scope:                   joinScope(scopes),
		Contacts:                client.Contacts,
		TOSURI:                  client.TOSURI,
		PolicyURI:               client.PolicyURI,
		SoftwareID:              client.SoftwareID,
		SoftwareVersion:         client.SoftwareVersion,
	}, nil
}

// rejectRegistration audits a rejected registration and returns the error
func (s *Server) rejectRegistration(oauthErr *oauth.OAuthError) *oauth.OAuthError {
	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type: security.EventClientRegistrationRejected,
			Details: map[string]any{
				"error":  oauthErr.Code,
				"reason": oauthErr.Description,
			},
		})
	}
	s.Logger.Warn("Client registration rejected",
		"error", oauthErr.Code,
		"reason", oauthErr.Description)
	return oauthErr
}

// generateClientSecret generates a secret for confidential clients.
// Public clients get no secret.
func generateClientSecret(public bool) (string, string, error) {
	if public {
		return "", "", nil
	}

	clientSecret := security.GenerateToken()
	hash, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return clientSecret, string(hash), nil
}

// ValidateClientSecret checks a confidential client's secret against the
// stored bcrypt hash
func (s *Server) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	client, err := s.store.GetClientByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return oauth.ErrInvalidClient("unknown client")
		}
		s.Logger.Error("Client lookup failed during authentication", "error", err)
		return oauth.ErrServerError("client authentication failed")
	}

	if client.Public || client.SecretHash == "" {
		return oauth.ErrInvalidClient("client has no secret")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(clientSecret)); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", clientID, "invalid_client_secret")
		}
		return oauth.ErrInvalidClient("invalid client credentials")
	}

	return nil
}

func hasGrantType(grantTypes []string, grantType string) bool {
	return containsString(grantTypes, grantType)
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
