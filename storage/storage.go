package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row. Callers translate it
// to the appropriate OAuth protocol error; it never reaches a client verbatim.
var ErrNotFound = errors.New("storage: not found")

// Client represents a registered OAuth client.
type Client struct {
	ID                      string
	ClientID                string // unique; server-issued random ID
	Name                    string
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	Scopes                  []string // nil = all supported scopes allowed
	Public                  bool
	SecretHash              string // bcrypt hash; empty for public clients
	TokenEndpointAuthMethod string
	ClientURI               string
	LogoURI                 string
	Contacts                []string
	TOSURI                  string
	PolicyURI               string
	SoftwareID              string
	SoftwareVersion         string
	CreatedAt               time.Time
}

// AuthorizationCode represents an issued authorization code. Only the SHA-256
// hash of the raw code is stored. UsedAt transitions nil -> set exactly once.
type AuthorizationCode struct {
	ID                  string
	CodeHash            string
	ClientID            string
	UserID              string
	RedirectURI         string // exact string bound at issuance
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	Resource            string
	State               string
	CreatedAt           time.Time
	ExpiresAt           time.Time
	UsedAt              *time.Time
}

// AccessToken represents an issued access token (hash only).
type AccessToken struct {
	ID         string
	TokenHash  string
	ClientID   string
	UserID     string
	Scopes     []string
	Resource   string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	LastUsedAt *time.Time
}

// RefreshToken represents an issued refresh token (hash only). ReplacedByID
// forms the rotation chain: it points at the refresh token that superseded
// this one, so replay of a rotated token can be traced to its successor.
type RefreshToken struct {
	ID            string
	TokenHash     string
	ClientID      string
	UserID        string
	Scopes        []string
	AccessTokenID string // the access token issued alongside this refresh token
	CreatedAt     time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time
	ReplacedByID  string
}

// ConsentGrant records a user's approval of a client's scopes.
// Unique on (UserID, ClientID); re-consent replaces the scope set.
type ConsentGrant struct {
	ID        string
	UserID    string
	ClientID  string
	Scopes    []string
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}

// ClientStore manages registered OAuth clients.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// SaveClient persists a registered client
	SaveClient(ctx context.Context, client *Client) error

	// GetClientByClientID retrieves a client by its client_id (exact match)
	GetClientByClientID(ctx context.Context, clientID string) (*Client, error)

	// ListClients lists all registered clients (for admin purposes)
	ListClients(ctx context.Context) ([]*Client, error)
}

// AuthorizationCodeStore manages single-use authorization codes.
type AuthorizationCodeStore interface {
	// SaveAuthorizationCode persists an issued authorization code
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode retrieves the code matching (codeHash, clientID,
	// redirectURI) exactly that is unused and unexpired as of now.
	// Returns ErrNotFound otherwise.
	GetAuthorizationCode(ctx context.Context, codeHash, clientID, redirectURI string, now time.Time) (*AuthorizationCode, error)

	// ConsumeAuthorizationCode atomically marks the code as used via a
	// conditional update scoped to used_at IS NULL. Under two concurrent
	// redemption attempts exactly one caller gets the row; the loser and any
	// replay get ErrNotFound.
	// SECURITY: This MUST be a single compare-and-set, never read-then-write.
	ConsumeAuthorizationCode(ctx context.Context, codeHash, clientID, redirectURI string, now time.Time) (*AuthorizationCode, error)

	// DeleteExpiredAuthorizationCodes removes codes whose expiry has passed
	DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error)
}

// TokenStore manages access and refresh token rows.
type TokenStore interface {
	// SaveAccessToken persists an access token row
	SaveAccessToken(ctx context.Context, token *AccessToken) error

	// SaveRefreshToken persists a refresh token row
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetAccessTokenByHash retrieves an access token row by hash, whatever its
	// revocation or expiry state. Validity policy belongs to the caller.
	GetAccessTokenByHash(ctx context.Context, tokenHash string) (*AccessToken, error)

	// GetRefreshTokenByHash retrieves a refresh token row by hash scoped to a
	// client, whatever its revocation or expiry state.
	GetRefreshTokenByHash(ctx context.Context, tokenHash, clientID string) (*RefreshToken, error)

	// TouchAccessToken updates last_used_at. Best-effort bookkeeping: callers
	// must never let a failure here affect validation results.
	TouchAccessToken(ctx context.Context, id string, when time.Time) error

	// RevokeAccessToken sets revoked_at on an access token row
	RevokeAccessToken(ctx context.Context, id string, when time.Time) error

	// RevokeRefreshToken sets revoked_at and, when rotating, the forward
	// pointer to the replacing refresh token. Returns ErrNotFound when the
	// token does not exist or is already revoked, so a rotation that lost a
	// concurrent race aborts instead of committing a second pair.
	RevokeRefreshToken(ctx context.Context, id string, when time.Time, replacedByID string) error

	// RevokeTokensForUserClient sets revoked_at on every currently-unrevoked
	// access and refresh token for the (userID, clientID) pair. Returns the
	// number of rows revoked across both tables.
	RevokeTokensForUserClient(ctx context.Context, userID, clientID string, when time.Time) (int64, error)
}

// ConsentStore manages per-(user, client) consent grants.
type ConsentStore interface {
	// GetConsent retrieves the consent grant for (userID, clientID),
	// revoked or not. Returns ErrNotFound if none was ever recorded.
	GetConsent(ctx context.Context, userID, clientID string) (*ConsentGrant, error)

	// UpsertConsent inserts or replaces the grant for (UserID, ClientID):
	// scopes are replaced, not unioned, and any prior revocation is cleared.
	UpsertConsent(ctx context.Context, grant *ConsentGrant) error

	// RevokeConsent sets revoked_at on the grant
	RevokeConsent(ctx context.Context, userID, clientID string, when time.Time) error
}

// Store composes all storage interfaces with an explicit transaction boundary.
type Store interface {
	ClientStore
	AuthorizationCodeStore
	TokenStore
	ConsentStore

	// WithTransaction runs fn against a transactional view of the store and
	// commits iff fn returns nil. Refresh token rotation wraps its lookup,
	// new-pair insertion, and old-pair revocation in one such transaction so
	// a mid-rotation crash cannot leave two simultaneously valid families.
	WithTransaction(ctx context.Context, fn func(Store) error) error
}
