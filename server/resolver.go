package server

import (
	"context"
	"errors"

	"github.com/readerd/oauth"
	"github.com/readerd/oauth/storage"
)

// ResolvedClient is the unified view of a client regardless of origin:
// either a persisted registration or a client ID metadata document fetched
// from a URL-based client_id.
type ResolvedClient struct {
	ClientID                string
	Name                    string
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	Scopes                  []string // nil = all supported scopes allowed
	TokenEndpointAuthMethod string
	SecretHash              string

	// IsPublic is true for clients that cannot hold a secret. URL-resolved
	// clients are always public.
	IsPublic bool

	// FromDatabase distinguishes persisted registrations from URL-resolved
	// metadata, which is never stored.
	FromDatabase bool
}

// ResolveClient resolves a client_id to a client. Persisted registrations
// take precedence; a client_id that looks like an HTTPS URL falls back to a
// metadata document fetch. Anything else is invalid_client.
func (s *Server) ResolveClient(ctx context.Context, clientID string) (*ResolvedClient, error) {
	if clientID == "" {
		return nil, oauth.ErrInvalidClient("client_id is required")
	}

	client, err := s.store.GetClientByClientID(ctx, clientID)
	if err == nil {
		return &ResolvedClient{
			ClientID:                client.ClientID,
			Name:                    client.Name,
			RedirectURIs:            client.RedirectURIs,
			GrantTypes:              client.GrantTypes,
			ResponseTypes:           client.ResponseTypes,
			Scopes:                  client.Scopes,
			TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
			SecretHash:              client.SecretHash,
			IsPublic:                client.Public,
			FromDatabase:            true,
		}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.Logger.Error("Client lookup failed", "error", err, "client_id", safeTruncate(clientID, 64))
		return nil, oauth.ErrServerError("client resolution failed")
	}

	if !isURLClientID(clientID) {
		return nil, oauth.ErrInvalidClient("unknown client")
	}

	metadata, err := s.fetchClientMetadata(ctx, clientID)
	if err != nil {
		s.Logger.Debug("Client metadata fetch failed",
			"client_id", clientID,
			"error", err)
		return nil, oauth.ErrInvalidClient("could not resolve client metadata")
	}

	return &ResolvedClient{
		ClientID:                metadata.ClientID,
		Name:                    metadata.ClientName,
		RedirectURIs:            metadata.RedirectURIs,
		GrantTypes:              metadata.GrantTypes,
		ResponseTypes:           metadata.ResponseTypes,
		Scopes:                  parseScope(metadata.Scope),
		TokenEndpointAuthMethod: metadata.TokenEndpointAuthMethod,
		IsPublic:                true,
		FromDatabase:            false,
	}, nil
}
