package server

import (
	"context"
	"testing"

	"github.com/readerd/oauth"
)

func TestResolveClient(t *testing.T) {
	ctx := context.Background()

	t.Run("registered client", func(t *testing.T) {
		srv, _ := setupTestServer(t)
		registered := registerTestClient(t, srv, []string{testRedirectURI})

		client, err := srv.ResolveClient(ctx, registered.ClientID)
		if err != nil {
			t.Fatalf("ResolveClient() error = %v", err)
		}
		if !client.FromDatabase {
			t.Error("FromDatabase = false for registered client")
		}
		if !client.IsPublic {
			t.Error("IsPublic = false for client registered with auth method none")
		}
		if client.Name != "Test Reader" {
			t.Errorf("Name = %q, want Test Reader", client.Name)
		}
	})

	t.Run("empty client_id", func(t *testing.T) {
		srv, _ := setupTestServer(t)

		_, err := srv.ResolveClient(ctx, "")
		assertOAuthErrorCode(t, err, oauth.ErrorCodeInvalidClient)
	})

	t.Run("unknown opaque client_id", func(t *testing.T) {
		srv, _ := setupTestServer(t)

		_, err := srv.ResolveClient(ctx, "not-registered")
		assertOAuthErrorCode(t, err, oauth.ErrorCodeInvalidClient)
	})

	t.Run("URL client_id with unreachable metadata", func(t *testing.T) {
		srv, _ := setupTestServer(t)

		// Loopback metadata URLs are blocked by the SSRF guard, so the
		// resolution fails closed with invalid_client
		_, err := srv.ResolveClient(ctx, "https://127.0.0.1/oauth-client.json")
		assertOAuthErrorCode(t, err, oauth.ErrorCodeInvalidClient)
	})

	t.Run("http URL client_id is not a URL client", func(t *testing.T) {
		srv, _ := setupTestServer(t)

		_, err := srv.ResolveClient(ctx, "http://app.example.com/client.json")
		assertOAuthErrorCode(t, err, oauth.ErrorCodeInvalidClient)
	})
}
