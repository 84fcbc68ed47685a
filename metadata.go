package oauth

import "strings"

// Endpoint paths served by the reader application, relative to the issuer.
const (
	AuthorizationEndpointPath = "/oauth/authorize"
	TokenEndpointPath         = "/oauth/token"
	RegistrationEndpointPath  = "/oauth/register"
)

// NewAuthorizationServerMetadata builds the RFC 8414 metadata document for the
// given issuer. The advertised capabilities match exactly what the server core
// implements: authorization_code and refresh_token grants, S256 PKCE, public
// and client_secret_basic clients, and URL client identifiers.
func NewAuthorizationServerMetadata(issuer string, scopes []string) *AuthorizationServerMetadata {
	base := strings.TrimSuffix(issuer, "/")
	return &AuthorizationServerMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             base + AuthorizationEndpointPath,
		TokenEndpoint:                     base + TokenEndpointPath,
		RegistrationEndpoint:              base + RegistrationEndpointPath,
		ScopesSupported:                   scopes,
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		TokenEndpointAuthMethodsSupported: []string{"none", "client_secret_basic"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		ClientIDMetadataDocumentSupported: true,
	}
}

// NewProtectedResourceMetadata builds the RFC 9728 metadata document for a
// resource protected by this issuer. Bearer tokens are accepted in the
// Authorization header only.
func NewProtectedResourceMetadata(resource, issuer string, scopes []string) *ProtectedResourceMetadata {
	return &ProtectedResourceMetadata{
		Resource:               resource,
		AuthorizationServers:   []string{issuer},
		ScopesSupported:        scopes,
		BearerMethodsSupported: []string{"header"},
	}
}
