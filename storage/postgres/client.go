package postgres

import (
	"context"
	"fmt"

	"github.com/readerd/oauth/storage"
)

const clientColumns = `id, client_id, name, redirect_uris, grant_types, response_types, scopes,
		public, secret_hash, token_endpoint_auth_method, client_uri, logo_uri, contacts,
		tos_uri, policy_uri, software_id, software_version, created_at`

// SaveClient persists a registered client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	query := `
		INSERT INTO oauth_clients (` + clientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := s.db.Exec(ctx, query,
		client.ID, client.ClientID, client.Name, client.RedirectURIs, client.GrantTypes,
		client.ResponseTypes, client.Scopes, client.Public, client.SecretHash,
		client.TokenEndpointAuthMethod, client.ClientURI, client.LogoURI, client.Contacts,
		client.TOSURI, client.PolicyURI, client.SoftwareID, client.SoftwareVersion,
		client.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save client: %w", err)
	}
	return nil
}

// GetClientByClientID retrieves a client by its client_id (exact match)
func (s *Store) GetClientByClientID(ctx context.Context, clientID string) (*storage.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM oauth_clients WHERE client_id = $1`

	client := &storage.Client{}
	err := s.db.QueryRow(ctx, query, clientID).Scan(
		&client.ID, &client.ClientID, &client.Name, &client.RedirectURIs, &client.GrantTypes,
		&client.ResponseTypes, &client.Scopes, &client.Public, &client.SecretHash,
		&client.TokenEndpointAuthMethod, &client.ClientURI, &client.LogoURI, &client.Contacts,
		&client.TOSURI, &client.PolicyURI, &client.SoftwareID, &client.SoftwareVersion,
		&client.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return client, nil
}

// ListClients lists all registered clients
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM oauth_clients ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []*storage.Client
	for rows.Next() {
		client := &storage.Client{}
		if err := rows.Scan(
			&client.ID, &client.ClientID, &client.Name, &client.RedirectURIs, &client.GrantTypes,
			&client.ResponseTypes, &client.Scopes, &client.Public, &client.SecretHash,
			&client.TokenEndpointAuthMethod, &client.ClientURI, &client.LogoURI, &client.Contacts,
			&client.TOSURI, &client.PolicyURI, &client.SoftwareID, &client.SoftwareVersion,
			&client.CreatedAt,
		); err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}
