package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/readerd/oauth/storage"
)

func testCode(hash string, ttl time.Duration) *storage.AuthorizationCode {
	now := time.Now()
	return &storage.AuthorizationCode{
		ID:                  "code-" + hash,
		CodeHash:            hash,
		ClientID:            "client-1",
		UserID:              "user-1",
		RedirectURI:         "https://app.example/cb",
		Scopes:              []string{"read"},
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
	}
}

func TestConsumeAuthorizationCode_SingleWinner(t *testing.T) {
	ctx := context.Background()
	store := New()

	if err := store.SaveAuthorizationCode(ctx, testCode("h1", time.Minute)); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	const attempts = 20
	var wg sync.WaitGroup
	winners := make(chan *storage.AuthorizationCode, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := store.ConsumeAuthorizationCode(ctx, "h1", "client-1", "https://app.example/cb", time.Now())
			if err == nil {
				winners <- code
			}
		}()
	}
	wg.Wait()
	close(winners)

	var count int
	for range winners {
		count++
	}
	if count != 1 {
		t.Errorf("concurrent consume winners = %d, want exactly 1", count)
	}
}

func TestConsumeAuthorizationCode_Bindings(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name        string
		code        *storage.AuthorizationCode
		clientID    string
		redirectURI string
		wantErr     bool
	}{
		{
			name:        "exact match",
			code:        testCode("h-ok", time.Minute),
			clientID:    "client-1",
			redirectURI: "https://app.example/cb",
			wantErr:     false,
		},
		{
			name:        "wrong redirect URI",
			code:        testCode("h-uri", time.Minute),
			clientID:    "client-1",
			redirectURI: "https://evil.example/cb",
			wantErr:     true,
		},
		{
			name:        "wrong client",
			code:        testCode("h-client", time.Minute),
			clientID:    "client-2",
			redirectURI: "https://app.example/cb",
			wantErr:     true,
		},
		{
			name:        "expired",
			code:        testCode("h-exp", -time.Second),
			clientID:    "client-1",
			redirectURI: "https://app.example/cb",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := New()
			if err := store.SaveAuthorizationCode(ctx, tt.code); err != nil {
				t.Fatalf("SaveAuthorizationCode() error = %v", err)
			}
			_, err := store.ConsumeAuthorizationCode(ctx, tt.code.CodeHash, tt.clientID, tt.redirectURI, now)
			if (err != nil) != tt.wantErr {
				t.Errorf("ConsumeAuthorizationCode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDeleteExpiredAuthorizationCodes(t *testing.T) {
	ctx := context.Background()
	store := New()

	_ = store.SaveAuthorizationCode(ctx, testCode("fresh", time.Minute))
	_ = store.SaveAuthorizationCode(ctx, testCode("stale", -time.Minute))

	removed, err := store.DeleteExpiredAuthorizationCodes(ctx, time.Now())
	if err != nil {
		t.Fatalf("DeleteExpiredAuthorizationCodes() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := store.GetAuthorizationCode(ctx, "fresh", "client-1", "https://app.example/cb", time.Now()); err != nil {
		t.Errorf("fresh code should survive cleanup: %v", err)
	}
}

func TestRevokeTokensForUserClient(t *testing.T) {
	ctx := context.Background()
	store := New()
	now := time.Now()

	_ = store.SaveAccessToken(ctx, &storage.AccessToken{
		ID: "at-1", TokenHash: "ah-1", ClientID: "client-1", UserID: "user-1",
		ExpiresAt: now.Add(time.Hour),
	})
	_ = store.SaveRefreshToken(ctx, &storage.RefreshToken{
		ID: "rt-1", TokenHash: "rh-1", ClientID: "client-1", UserID: "user-1",
		AccessTokenID: "at-1", ExpiresAt: now.Add(time.Hour),
	})
	// Different client, must survive
	_ = store.SaveAccessToken(ctx, &storage.AccessToken{
		ID: "at-2", TokenHash: "ah-2", ClientID: "client-2", UserID: "user-1",
		ExpiresAt: now.Add(time.Hour),
	})

	revoked, err := store.RevokeTokensForUserClient(ctx, "user-1", "client-1", now)
	if err != nil {
		t.Fatalf("RevokeTokensForUserClient() error = %v", err)
	}
	if revoked != 2 {
		t.Errorf("revoked = %d, want 2", revoked)
	}

	at, _ := store.GetAccessTokenByHash(ctx, "ah-1")
	if at.RevokedAt == nil {
		t.Error("access token for pair should be revoked")
	}
	other, _ := store.GetAccessTokenByHash(ctx, "ah-2")
	if other.RevokedAt != nil {
		t.Error("token for another client must not be revoked")
	}
}

func TestConsentUpsertReplacesScopes(t *testing.T) {
	ctx := context.Background()
	store := New()
	now := time.Now()

	first := &storage.ConsentGrant{
		ID: "cg-1", UserID: "user-1", ClientID: "client-1",
		Scopes: []string{"read", "annotate"}, CreatedAt: now, UpdatedAt: now,
	}
	if err := store.UpsertConsent(ctx, first); err != nil {
		t.Fatalf("UpsertConsent() error = %v", err)
	}

	if err := store.RevokeConsent(ctx, "user-1", "client-1", now); err != nil {
		t.Fatalf("RevokeConsent() error = %v", err)
	}

	// Re-consent replaces scopes and clears the revocation
	second := &storage.ConsentGrant{
		ID: "cg-2", UserID: "user-1", ClientID: "client-1",
		Scopes: []string{"write"}, CreatedAt: now, UpdatedAt: now.Add(time.Second),
	}
	if err := store.UpsertConsent(ctx, second); err != nil {
		t.Fatalf("UpsertConsent() error = %v", err)
	}

	grant, err := store.GetConsent(ctx, "user-1", "client-1")
	if err != nil {
		t.Fatalf("GetConsent() error = %v", err)
	}
	if grant.RevokedAt != nil {
		t.Error("re-consent must clear revocation")
	}
	if len(grant.Scopes) != 1 || grant.Scopes[0] != "write" {
		t.Errorf("scopes = %v, want replaced set [write]", grant.Scopes)
	}
	if grant.ID != "cg-1" {
		t.Errorf("upsert must keep the original row identity, got %q", grant.ID)
	}
}

func TestGetRefreshTokenByHash_ClientScoped(t *testing.T) {
	ctx := context.Background()
	store := New()

	_ = store.SaveRefreshToken(ctx, &storage.RefreshToken{
		ID: "rt-1", TokenHash: "rh-1", ClientID: "client-1", UserID: "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	if _, err := store.GetRefreshTokenByHash(ctx, "rh-1", "client-1"); err != nil {
		t.Errorf("lookup with owning client failed: %v", err)
	}
	if _, err := store.GetRefreshTokenByHash(ctx, "rh-1", "client-2"); err == nil {
		t.Error("lookup with wrong client must miss")
	}
}

func TestRevokeRefreshToken_OnlyLiveRows(t *testing.T) {
	ctx := context.Background()
	store := New()

	_ = store.SaveRefreshToken(ctx, &storage.RefreshToken{
		ID: "rt-1", TokenHash: "rh-1", ClientID: "client-1", UserID: "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	if err := store.RevokeRefreshToken(ctx, "rt-1", time.Now(), "rt-2"); err != nil {
		t.Fatalf("revoking a live token failed: %v", err)
	}

	// A second revoke means the caller lost a concurrent rotation and must
	// see ErrNotFound, not silent success
	if err := store.RevokeRefreshToken(ctx, "rt-1", time.Now(), "rt-3"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("revoking an already-revoked token: err = %v, want ErrNotFound", err)
	}
	if err := store.RevokeRefreshToken(ctx, "rt-missing", time.Now(), ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("revoking an unknown token: err = %v, want ErrNotFound", err)
	}

	token, err := store.GetRefreshTokenByHash(ctx, "rh-1", "client-1")
	if err != nil {
		t.Fatalf("GetRefreshTokenByHash() error = %v", err)
	}
	if token.ReplacedByID != "rt-2" {
		t.Errorf("ReplacedByID = %q, want the first rotation's pointer preserved", token.ReplacedByID)
	}
}
