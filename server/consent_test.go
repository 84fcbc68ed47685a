package server

import (
	"context"
	"testing"

	"github.com/readerd/oauth"
)

func TestHasConsent(t *testing.T) {
	ctx := context.Background()

	t.Run("no grant", func(t *testing.T) {
		srv, _ := setupTestServer(t)

		ok, err := srv.HasConsent(ctx, testUserID, "client-1", []string{"read"})
		if err != nil {
			t.Fatalf("HasConsent() error = %v", err)
		}
		if ok {
			t.Error("HasConsent() = true without a grant")
		}
	})

	t.Run("superset grant covers request", func(t *testing.T) {
		srv, _ := setupTestServer(t)

		if err := srv.RecordConsent(ctx, testUserID, "client-1", []string{"read", "annotate"}); err != nil {
			t.Fatalf("RecordConsent() error = %v", err)
		}

		ok, err := srv.HasConsent(ctx, testUserID, "client-1", []string{"read"})
		if err != nil {
			t.Fatalf("HasConsent() error = %v", err)
		}
		if !ok {
			t.Error("HasConsent() = false for covered scopes")
		}
	})

	t.Run("subset grant is insufficient", func(t *testing.T) {
		srv, _ := setupTestServer(t)

		if err := srv.RecordConsent(ctx, testUserID, "client-1", []string{"read"}); err != nil {
			t.Fatalf("RecordConsent() error = %v", err)
		}

		ok, err := srv.HasConsent(ctx, testUserID, "client-1", []string{"read", "annotate"})
		if err != nil {
			t.Fatalf("HasConsent() error = %v", err)
		}
		if ok {
			t.Error("HasConsent() = true for uncovered scopes")
		}
	})

	t.Run("revoked grant never covers", func(t *testing.T) {
		srv, _ := setupTestServer(t)

		if err := srv.RecordConsent(ctx, testUserID, "client-1", []string{"read"}); err != nil {
			t.Fatalf("RecordConsent() error = %v", err)
		}
		if err := srv.RevokeConsent(ctx, testUserID, "client-1"); err != nil {
			t.Fatalf("RevokeConsent() error = %v", err)
		}

		ok, err := srv.HasConsent(ctx, testUserID, "client-1", []string{"read"})
		if err != nil {
			t.Fatalf("HasConsent() error = %v", err)
		}
		if ok {
			t.Error("HasConsent() = true for revoked grant")
		}
	})
}

func TestRecordConsent_ReplacesScopes(t *testing.T) {
	ctx := context.Background()
	srv, _ := setupTestServer(t)

	if err := srv.RecordConsent(ctx, testUserID, "client-1", []string{"read", "annotate"}); err != nil {
		t.Fatalf("RecordConsent() error = %v", err)
	}
	// Re-consent with a narrower set replaces, not unions
	if err := srv.RecordConsent(ctx, testUserID, "client-1", []string{"read"}); err != nil {
		t.Fatalf("RecordConsent() error = %v", err)
	}

	ok, err := srv.HasConsent(ctx, testUserID, "client-1", []string{"annotate"})
	if err != nil {
		t.Fatalf("HasConsent() error = %v", err)
	}
	if ok {
		t.Error("replaced grant still covers dropped scope")
	}
}

func TestRecordConsent_ClearsRevocation(t *testing.T) {
	ctx := context.Background()
	srv, _ := setupTestServer(t)

	if err := srv.RecordConsent(ctx, testUserID, "client-1", []string{"read"}); err != nil {
		t.Fatalf("RecordConsent() error = %v", err)
	}
	if err := srv.RevokeConsent(ctx, testUserID, "client-1"); err != nil {
		t.Fatalf("RevokeConsent() error = %v", err)
	}
	if err := srv.RecordConsent(ctx, testUserID, "client-1", []string{"read"}); err != nil {
		t.Fatalf("re-consent error = %v", err)
	}

	ok, err := srv.HasConsent(ctx, testUserID, "client-1", []string{"read"})
	if err != nil {
		t.Fatalf("HasConsent() error = %v", err)
	}
	if !ok {
		t.Error("re-consent after revocation should restore the grant")
	}
}

func TestRevokeConsent(t *testing.T) {
	ctx := context.Background()

	t.Run("cascades token revocation", func(t *testing.T) {
		srv, _ := setupTestServer(t)

		if err := srv.RecordConsent(ctx, testUserID, "client-1", []string{"read"}); err != nil {
			t.Fatalf("RecordConsent() error = %v", err)
		}
		pair := mintTestPair(t, srv, "client-1")

		if err := srv.RevokeConsent(ctx, testUserID, "client-1"); err != nil {
			t.Fatalf("RevokeConsent() error = %v", err)
		}

		_, err := srv.ValidateAccessToken(ctx, pair.AccessToken)
		assertOAuthErrorCode(t, err, oauth.ErrorCodeInvalidToken)

		_, rErr := srv.RotateRefreshToken(ctx, pair.RefreshToken, "client-1")
		assertOAuthErrorCode(t, rErr, oauth.ErrorCodeInvalidGrant)
	})

	t.Run("nothing to revoke", func(t *testing.T) {
		srv, _ := setupTestServer(t)

		err := srv.RevokeConsent(ctx, testUserID, "client-1")
		assertOAuthErrorCode(t, err, oauth.ErrorCodeInvalidRequest)
	})
}
