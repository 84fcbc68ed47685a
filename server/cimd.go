package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/readerd/oauth/security"
)

// maxClientMetadataSize caps the metadata document body at 1 MiB
const maxClientMetadataSize = 1 * 1024 * 1024

// ClientMetadata represents OAuth client metadata fetched from a URL-based
// client_id (draft-ietf-oauth-client-id-metadata-document)
type ClientMetadata struct {
	ClientID                string   `json:"client_id"`
	ClientName              string   `json:"client_name,omitempty"`
	ClientURI               string   `json:"client_uri,omitempty"`
	LogoURI                 string   `json:"logo_uri,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	Contacts                []string `json:"contacts,omitempty"`
}

// isURLClientID checks if a client_id is a URL-formatted identifier.
// Metadata-document client IDs MUST be HTTPS URLs with a hostname.
func isURLClientID(clientID string) bool {
	if clientID == "" {
		return false
	}

	u, err := url.Parse(clientID)
	if err != nil {
		return false
	}

	return u.Scheme == "https" && u.Host != ""
}

// isPrivateIP checks if an IP address is in a private/internal range.
// Used for SSRF protection when fetching metadata documents.
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}

	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	if ipv4 := ip.To4(); ipv4 != nil {
		// 10.0.0.0/8
		if ipv4[0] == 10 {
			return true
		}
		// 172.16.0.0/12
		if ipv4[0] == 172 && ipv4[1] >= 16 && ipv4[1] <= 31 {
			return true
		}
		// 192.168.0.0/16
		if ipv4[0] == 192 && ipv4[1] == 168 {
			return true
		}
	}

	// IPv6 unique local addresses (fc00::/7)
	if len(ip) == 16 && (ip[0]&0xfe) == 0xfc {
		return true
	}

	return false
}

// validateMetadataURL performs SSRF protection checks on a metadata URL
func validateMetadataURL(clientID string) error {
	u, err := url.Parse(clientID)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "https" {
		return fmt.Errorf("client_id metadata URL must use HTTPS, got: %s", u.Scheme)
	}

	hostname := u.Hostname()

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return fmt.Errorf("failed to resolve hostname %s: %w", hostname, err)
	}

	// Block requests that would reach private/internal services
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("client_id metadata URL resolves to private/internal IP address: %s -> %s",
				hostname, ip.String())
		}
	}

	return nil
}

// fetchClientMetadata fetches and validates OAuth client metadata from an
// HTTPS URL. The document is never persisted: URL clients are re-resolved on
// every request.
//
// Security: SSRF guard against private addresses, HTTPS only, bounded
// timeout, 1 MiB body cap, no redirect following, and the document's
// client_id must exactly match the URL it was fetched from.
func (s *Server) fetchClientMetadata(ctx context.Context, clientID string) (*ClientMetadata, error) {
	start := time.Now()
	success := false
	defer func() {
		s.metrics().RecordMetadataFetch(ctx, success, float64(time.Since(start).Milliseconds()))
	}()

	if err := validateMetadataURL(clientID); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogEvent(security.Event{
				Type:     security.EventClientMetadataRejected,
				ClientID: clientID,
				Details: map[string]any{
					"reason": err.Error(),
				},
			})
		}
		return nil, fmt.Errorf("metadata URL validation failed: %w", err)
	}

	client := &http.Client{
		Timeout: s.Config.ClientMetadataFetchTimeout,
		// Redirects could bypass the SSRF checks performed on the original URL
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, clientID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "readerd-oauth")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata from %s: %w", clientID, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.Logger.Warn("Failed to close metadata response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata fetch returned HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return nil, fmt.Errorf("metadata must be application/json, got: %s", contentType)
	}

	limitedReader := io.LimitReader(resp.Body, maxClientMetadataSize)

	var metadata ClientMetadata
	if err := json.NewDecoder(limitedReader).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata JSON: %w", err)
	}

	// The client_id in the document MUST exactly match the URL it was
	// retrieved from, otherwise any host could impersonate any client
	if metadata.ClientID != clientID {
		if s.Auditor != nil {
			s.Auditor.LogEvent(security.Event{
				Type:     security.EventClientMetadataRejected,
				ClientID: clientID,
				Details: map[string]any{
					"reason":             "client_id_mismatch",
					"document_client_id": metadata.ClientID,
				},
			})
		}
		return nil, fmt.Errorf("client_id mismatch: document contains %q but was fetched from %q",
			metadata.ClientID, clientID)
	}

	if len(metadata.RedirectURIs) == 0 {
		return nil, fmt.Errorf("metadata must contain at least one redirect_uri")
	}

	// Defaults per RFC 7591 when the document omits them
	if len(metadata.GrantTypes) == 0 {
		metadata.GrantTypes = []string{GrantTypeAuthorizationCode}
	}
	if len(metadata.ResponseTypes) == 0 {
		metadata.ResponseTypes = []string{"code"}
	}
	if metadata.TokenEndpointAuthMethod == "" {
		metadata.TokenEndpointAuthMethod = TokenEndpointAuthMethodNone
	}

	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:     security.EventClientMetadataFetched,
			ClientID: clientID,
			Details: map[string]any{
				"client_name":    metadata.ClientName,
				"redirect_count": len(metadata.RedirectURIs),
			},
		})
	}
	success = true

	s.Logger.Debug("Fetched client metadata from URL",
		"client_id", clientID,
		"client_name", metadata.ClientName,
		"redirect_uris", len(metadata.RedirectURIs))

	return &metadata, nil
}
