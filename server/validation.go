package server

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/readerd/oauth/security"
)

// PKCE constants (RFC 7636)
const (
	// PKCEMethodS256 is the SHA256-based code challenge method.
	// The 'plain' method is forbidden in OAuth 2.1 and not supported.
	PKCEMethodS256 = "S256"

	// MinCodeVerifierLength is the minimum code_verifier length (RFC 7636)
	MinCodeVerifierLength = 43

	// MaxCodeVerifierLength is the maximum code_verifier length (RFC 7636)
	MaxCodeVerifierLength = 128
)

// Token endpoint authentication method constants (RFC 7591)
const (
	// TokenEndpointAuthMethodNone represents no authentication (public clients)
	TokenEndpointAuthMethodNone = "none"

	// TokenEndpointAuthMethodBasic represents HTTP Basic authentication
	TokenEndpointAuthMethodBasic = "client_secret_basic"

	// TokenEndpointAuthMethodPost represents POST form parameters
	TokenEndpointAuthMethodPost = "client_secret_post"
)

// Grant type constants
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// validatePKCE verifies a code_verifier against the S256 challenge bound to
// an authorization code. PKCE is mandatory: an empty challenge is rejected at
// issuance, so it is never empty here.
func (s *Server) validatePKCE(challenge, verifier string) error {
	if verifier == "" {
		return fmt.Errorf("code_verifier is required")
	}

	// RFC 7636: code_verifier must be 43-128 characters
	if len(verifier) < MinCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at least %d characters (RFC 7636)", MinCodeVerifierLength)
	}
	if len(verifier) > MaxCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at most %d characters (RFC 7636)", MaxCodeVerifierLength)
	}

	// RFC 7636: code_verifier can only contain [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~"
	for _, ch := range verifier {
		isValid := (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '~'
		if !isValid {
			return fmt.Errorf("code_verifier contains invalid characters (must be [A-Za-z0-9-._~])")
		}
	}

	if !security.ValidatePKCES256(verifier, challenge) {
		return fmt.Errorf("code_verifier does not match code_challenge")
	}

	return nil
}

// validateCodeChallenge checks a code_challenge parameter at authorization time
func validateCodeChallenge(challenge, method string) error {
	if challenge == "" {
		return fmt.Errorf("code_challenge is required (PKCE is mandatory)")
	}
	if method != "" && method != PKCEMethodS256 {
		return fmt.Errorf("unsupported code_challenge_method: %s (only %s is supported)", method, PKCEMethodS256)
	}
	// BASE64URL(SHA256(...)) is always 43 characters
	if len(challenge) != 43 {
		return fmt.Errorf("code_challenge must be 43 characters for %s", PKCEMethodS256)
	}
	return nil
}

// isLocalhostHostname reports whether a hostname refers to the local machine
func isLocalhostHostname(hostname string) bool {
	if hostname == "localhost" {
		return true
	}

	// url.Hostname() may keep brackets on IPv6 literals
	cleanHostname := hostname
	if len(hostname) > 2 && hostname[0] == '[' && hostname[len(hostname)-1] == ']' {
		cleanHostname = hostname[1 : len(hostname)-1]
	}

	if ip := net.ParseIP(cleanHostname); ip != nil {
		return ip.IsLoopback()
	}

	return false
}

// validateRedirectURIFormat checks a single redirect URI for registration:
// absolute, no fragment, https except for loopback hosts.
func validateRedirectURIFormat(redirectURI string) error {
	if redirectURI == "" {
		return fmt.Errorf("redirect URI must not be empty")
	}

	u, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}

	if !u.IsAbs() {
		return fmt.Errorf("redirect URI must be absolute: %s", redirectURI)
	}

	if u.Fragment != "" {
		return fmt.Errorf("redirect URI must not contain a fragment: %s", redirectURI)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLocalhostHostname(u.Hostname()) {
			return nil
		}
		return fmt.Errorf("http redirect URIs are only allowed for loopback hosts: %s", redirectURI)
	default:
		return fmt.Errorf("redirect URI scheme must be https (or http for loopback): %s", redirectURI)
	}
}

// validateRedirectURIRegistered checks the exact-match registration of a
// redirect URI against a resolved client
func validateRedirectURIRegistered(client *ResolvedClient, redirectURI string) error {
	for _, uri := range client.RedirectURIs {
		if uri == redirectURI {
			return nil
		}
	}
	return fmt.Errorf("redirect URI not registered for client")
}

// parseScope splits a space-separated scope string per RFC 6749
func parseScope(scope string) []string {
	return strings.Fields(scope)
}

// joinScope joins a scope list into the RFC 6749 space-separated form
func joinScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// intersectScopes returns requested ∩ allowed, preserving requested order.
// A nil allowed set permits everything.
func intersectScopes(requested, allowed []string) []string {
	if len(allowed) == 0 {
		return requested
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		allowedSet[s] = true
	}

	var out []string
	for _, s := range requested {
		if allowedSet[s] {
			out = append(out, s)
		}
	}
	return out
}

// scopesCover reports whether granted ⊇ requested
func scopesCover(granted, requested []string) bool {
	grantedSet := make(map[string]bool, len(granted))
	for _, s := range granted {
		grantedSet[s] = true
	}
	for _, s := range requested {
		if !grantedSet[s] {
			return false
		}
	}
	return true
}

// clientAllowsScopes checks requested scopes against a client's registered
// scope restriction (nil = all supported scopes allowed)
func clientAllowsScopes(clientScopes, requested []string) error {
	if len(clientScopes) == 0 {
		return nil
	}
	for _, s := range requested {
		if !scopesCover(clientScopes, []string{s}) {
			return fmt.Errorf("scope %q not allowed for this client", s)
		}
	}
	return nil
}

// validateRequestedScopes checks requested scopes against the server's
// supported set
func (s *Server) validateRequestedScopes(requested []string) error {
	if len(s.Config.SupportedScopes) == 0 {
		return nil
	}
	supported := make(map[string]bool, len(s.Config.SupportedScopes))
	for _, sc := range s.Config.SupportedScopes {
		supported[sc] = true
	}
	for _, sc := range requested {
		if !supported[sc] {
			return fmt.Errorf("unsupported scope: %s", sc)
		}
	}
	return nil
}
