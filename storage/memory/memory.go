package memory

import (
	"context"
	"sync"
	"time"

	"github.com/readerd/oauth/storage"
)

// Store is an in-memory implementation of storage.Store.
//
// All operations take the store mutex, so every method is atomic on its own;
// ConsumeAuthorizationCode in particular is a true compare-and-set.
// WithTransaction serializes whole transactions against each other but does
// not simulate rollback; that is acceptable for tests and development.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	clients       map[string]*storage.Client            // client_id -> client
	authCodes     map[string]*storage.AuthorizationCode // code_hash -> code
	accessTokens  map[string]*storage.AccessToken       // id -> token
	accessByHash  map[string]string                     // token_hash -> id
	refreshTokens map[string]*storage.RefreshToken      // id -> token
	refreshByHash map[string]string                     // token_hash -> id
	consents      map[string]*storage.ConsentGrant      // userID+"\x00"+clientID -> grant
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		clients:       make(map[string]*storage.Client),
		authCodes:     make(map[string]*storage.AuthorizationCode),
		accessTokens:  make(map[string]*storage.AccessToken),
		accessByHash:  make(map[string]string),
		refreshTokens: make(map[string]*storage.RefreshToken),
		refreshByHash: make(map[string]string),
		consents:      make(map[string]*storage.ConsentGrant),
	}
}

var _ storage.Store = (*Store)(nil)

func consentKey(userID, clientID string) string {
	return userID + "\x00" + clientID
}

// ==================== ClientStore ====================

// SaveClient persists a registered client
func (s *Store) SaveClient(_ context.Context, client *storage.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *client
	s.clients[client.ClientID] = &c
	return nil
}

// GetClientByClientID retrieves a client by its client_id
func (s *Store) GetClientByClientID(_ context.Context, clientID string) (*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *client
	return &c, nil
}

// ListClients lists all registered clients
func (s *Store) ListClients(_ context.Context) ([]*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, client := range s.clients {
		c := *client
		clients = append(clients, &c)
	}
	return clients, nil
}

// ==================== AuthorizationCodeStore ====================

// SaveAuthorizationCode persists an issued authorization code
func (s *Store) SaveAuthorizationCode(_ context.Context, code *storage.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *code
	s.authCodes[code.CodeHash] = &c
	return nil
}

func codeMatches(code *storage.AuthorizationCode, clientID, redirectURI string, now time.Time) bool {
	return code.ClientID == clientID &&
		code.RedirectURI == redirectURI &&
		code.UsedAt == nil &&
		now.Before(code.ExpiresAt)
}

// GetAuthorizationCode retrieves a valid (unused, unexpired) code by exact binding
func (s *Store) GetAuthorizationCode(_ context.Context, codeHash, clientID, redirectURI string, now time.Time) (*storage.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	code, ok := s.authCodes[codeHash]
	if !ok || !codeMatches(code, clientID, redirectURI, now) {
		return nil, storage.ErrNotFound
	}
	c := *code
	return &c, nil
}

// ConsumeAuthorizationCode atomically marks a valid code as used.
// The check and the write happen under one lock, so two concurrent
// redemption attempts resolve to exactly one winner.
func (s *Store) ConsumeAuthorizationCode(_ context.Context, codeHash, clientID, redirectURI string, now time.Time) (*storage.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.authCodes[codeHash]
	if !ok || !codeMatches(code, clientID, redirectURI, now) {
		return nil, storage.ErrNotFound
	}

	used := now
	code.UsedAt = &used
	c := *code
	return &c, nil
}

// DeleteExpiredAuthorizationCodes removes codes whose expiry has passed
func (s *Store) DeleteExpiredAuthorizationCodes(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for hash, code := range s.authCodes {
		if !now.Before(code.ExpiresAt) {
			delete(s.authCodes, hash)
			removed++
		}
	}
	return removed, nil
}

// ==================== TokenStore ====================

// SaveAccessToken persists an access token row
func (s *Store) SaveAccessToken(_ context.Context, token *storage.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := *token
	s.accessTokens[token.ID] = &t
	s.accessByHash[token.TokenHash] = token.ID
	return nil
}

// SaveRefreshToken persists a refresh token row
func (s *Store) SaveRefreshToken(_ context.Context, token *storage.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := *token
	s.refreshTokens[token.ID] = &t
	s.refreshByHash[token.TokenHash] = token.ID
	return nil
}

// GetAccessTokenByHash retrieves an access token row by hash
func (s *Store) GetAccessTokenByHash(_ context.Context, tokenHash string) (*storage.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.accessByHash[tokenHash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	t := *s.accessTokens[id]
	return &t, nil
}

// GetRefreshTokenByHash retrieves a refresh token row by hash scoped to a client
func (s *Store) GetRefreshTokenByHash(_ context.Context, tokenHash, clientID string) (*storage.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.refreshByHash[tokenHash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	token := s.refreshTokens[id]
	if token.ClientID != clientID {
		return nil, storage.ErrNotFound
	}
	t := *token
	return &t, nil
}

// TouchAccessToken updates last_used_at on an access token row
func (s *Store) TouchAccessToken(_ context.Context, id string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.accessTokens[id]
	if !ok {
		return storage.ErrNotFound
	}
	token.LastUsedAt = &when
	return nil
}

// RevokeAccessToken sets revoked_at on an access token row
func (s *Store) RevokeAccessToken(_ context.Context, id string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.accessTokens[id]
	if !ok {
		return storage.ErrNotFound
	}
	if token.RevokedAt == nil {
		token.RevokedAt = &when
	}
	return nil
}

// RevokeRefreshToken sets revoked_at and the rotation-chain pointer
func (s *Store) RevokeRefreshToken(_ context.Context, id string, when time.Time, replacedByID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.refreshTokens[id]
	if !ok || token.RevokedAt != nil {
		return storage.ErrNotFound
	}
	token.RevokedAt = &when
	if replacedByID != "" {
		token.ReplacedByID = replacedByID
	}
	return nil
}

// RevokeTokensForUserClient revokes every unrevoked token for the pair
func (s *Store) RevokeTokensForUserClient(_ context.Context, userID, clientID string, when time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var revoked int64
	for _, token := range s.accessTokens {
		if token.UserID == userID && token.ClientID == clientID && token.RevokedAt == nil {
			at := when
			token.RevokedAt = &at
			revoked++
		}
	}
	for _, token := range s.refreshTokens {
		if token.UserID == userID && token.ClientID == clientID && token.RevokedAt == nil {
			at := when
			token.RevokedAt = &at
			revoked++
		}
	}
	return revoked, nil
}

// ==================== ConsentStore ====================

// GetConsent retrieves the consent grant for (userID, clientID)
func (s *Store) GetConsent(_ context.Context, userID, clientID string) (*storage.ConsentGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.consents[consentKey(userID, clientID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	g := *grant
	return &g, nil
}

// UpsertConsent inserts or replaces the grant, clearing any prior revocation
func (s *Store) UpsertConsent(_ context.Context, grant *storage.ConsentGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := consentKey(grant.UserID, grant.ClientID)
	g := *grant
	g.RevokedAt = nil
	if existing, ok := s.consents[key]; ok {
		g.ID = existing.ID
		g.CreatedAt = existing.CreatedAt
	}
	s.consents[key] = &g
	return nil
}

// RevokeConsent sets revoked_at on the grant
func (s *Store) RevokeConsent(_ context.Context, userID, clientID string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.consents[consentKey(userID, clientID)]
	if !ok {
		return storage.ErrNotFound
	}
	grant.RevokedAt = &when
	grant.UpdatedAt = when
	return nil
}

// ==================== Transactions ====================

// WithTransaction serializes fn against other transactions. The in-memory
// store does not roll back on error; the postgres store provides real
// transaction semantics.
func (s *Store) WithTransaction(_ context.Context, fn func(storage.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	return fn(s)
}
