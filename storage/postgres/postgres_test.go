package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/readerd/oauth/storage"
)

type StoreTestSuite struct {
	suite.Suite
	mock  pgxmock.PgxPoolIface
	store *Store
	ctx   context.Context
	now   time.Time
}

func (s *StoreTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(s.T(), err)
	s.mock = mock
	s.store = New(mock, nil)
	s.ctx = context.Background()
	s.now = time.Now().UTC().Truncate(time.Second)
}

func (s *StoreTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
	s.mock.Close()
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) authCodeRows(code *storage.AuthorizationCode) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "code_hash", "client_id", "user_id", "redirect_uri", "scopes",
		"code_challenge", "code_challenge_method", "resource", "state",
		"created_at", "expires_at", "used_at",
	}).AddRow(
		code.ID, code.CodeHash, code.ClientID, code.UserID, code.RedirectURI, code.Scopes,
		code.CodeChallenge, code.CodeChallengeMethod, code.Resource, code.State,
		code.CreatedAt, code.ExpiresAt, code.UsedAt,
	)
}

func (s *StoreTestSuite) TestSaveClient() {
	client := &storage.Client{
		ID:                      uuid.NewString(),
		ClientID:                uuid.NewString(),
		Name:                    "Reader",
		RedirectURIs:            []string{"https://reader.example/callback"},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		Public:                  true,
		TokenEndpointAuthMethod: "none",
		CreatedAt:               s.now,
	}

	s.mock.ExpectExec(`INSERT INTO oauth_clients`).
		WithArgs(
			client.ID, client.ClientID, client.Name, client.RedirectURIs, client.GrantTypes,
			client.ResponseTypes, client.Scopes, client.Public, client.SecretHash,
			client.TokenEndpointAuthMethod, client.ClientURI, client.LogoURI, client.Contacts,
			client.TOSURI, client.PolicyURI, client.SoftwareID, client.SoftwareVersion,
			client.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(s.T(), s.store.SaveClient(s.ctx, client))
}

func (s *StoreTestSuite) TestGetClientByClientID_NotFound() {
	s.mock.ExpectQuery(`SELECT .+ FROM oauth_clients WHERE client_id`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.store.GetClientByClientID(s.ctx, "missing")
	assert.ErrorIs(s.T(), err, storage.ErrNotFound)
}

func (s *StoreTestSuite) TestConsumeAuthorizationCode_Success() {
	used := s.now
	code := &storage.AuthorizationCode{
		ID:                  uuid.NewString(),
		CodeHash:            "hash",
		ClientID:            "client-1",
		UserID:              "user-1",
		RedirectURI:         "https://reader.example/callback",
		Scopes:              []string{"read"},
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		CreatedAt:           s.now.Add(-time.Minute),
		ExpiresAt:           s.now.Add(9 * time.Minute),
		UsedAt:              &used,
	}

	s.mock.ExpectQuery(`UPDATE oauth_authorization_codes SET used_at`).
		WithArgs(code.CodeHash, code.ClientID, code.RedirectURI, s.now).
		WillReturnRows(s.authCodeRows(code))

	got, err := s.store.ConsumeAuthorizationCode(s.ctx, code.CodeHash, code.ClientID, code.RedirectURI, s.now)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), code.UserID, got.UserID)
	assert.NotNil(s.T(), got.UsedAt)
}

func (s *StoreTestSuite) TestConsumeAuthorizationCode_AlreadyUsed() {
	s.mock.ExpectQuery(`UPDATE oauth_authorization_codes SET used_at`).
		WithArgs("hash", "client-1", "https://reader.example/callback", s.now).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.store.ConsumeAuthorizationCode(s.ctx, "hash", "client-1", "https://reader.example/callback", s.now)
	assert.ErrorIs(s.T(), err, storage.ErrNotFound)
}

func (s *StoreTestSuite) TestDeleteExpiredAuthorizationCodes() {
	s.mock.ExpectExec(`DELETE FROM oauth_authorization_codes WHERE expires_at`).
		WithArgs(s.now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.store.DeleteExpiredAuthorizationCodes(s.ctx, s.now)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), int64(3), n)
}

func (s *StoreTestSuite) TestGetRefreshTokenByHash_ReturnsRevokedRow() {
	revoked := s.now.Add(-time.Hour)
	rows := pgxmock.NewRows([]string{
		"id", "token_hash", "client_id", "user_id", "scopes",
		"access_token_id", "created_at", "expires_at", "revoked_at", "replaced_by_id",
	}).AddRow(
		"rt-1", "hash", "client-1", "user-1", []string{"read"},
		"at-1", s.now.Add(-2*time.Hour), s.now.Add(24*time.Hour), &revoked, "rt-2",
	)

	s.mock.ExpectQuery(`FROM oauth_refresh_tokens`).
		WithArgs("hash", "client-1").
		WillReturnRows(rows)

	token, err := s.store.GetRefreshTokenByHash(s.ctx, "hash", "client-1")
	assert.NoError(s.T(), err)
	assert.NotNil(s.T(), token.RevokedAt)
	assert.Equal(s.T(), "rt-2", token.ReplacedByID)
}

func (s *StoreTestSuite) TestRevokeRefreshToken_LinksReplacement() {
	s.mock.ExpectExec(`UPDATE oauth_refresh_tokens SET revoked_at = \$2, replaced_by_id`).
		WithArgs("rt-1", s.now, "rt-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(s.T(), s.store.RevokeRefreshToken(s.ctx, "rt-1", s.now, "rt-2"))
}

// A concurrent rotation can revoke the row between our read and our
// conditional update; zero rows affected must surface as ErrNotFound so the
// losing transaction aborts instead of committing a second pair.
func (s *StoreTestSuite) TestRevokeRefreshToken_AlreadyRevoked() {
	s.mock.ExpectExec(`UPDATE oauth_refresh_tokens SET revoked_at = \$2, replaced_by_id`).
		WithArgs("rt-1", s.now, "rt-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.store.RevokeRefreshToken(s.ctx, "rt-1", s.now, "rt-2")
	assert.ErrorIs(s.T(), err, storage.ErrNotFound)
}

func (s *StoreTestSuite) TestRevokeTokensForUserClient_SumsBothTables() {
	s.mock.ExpectExec(`UPDATE oauth_access_tokens SET revoked_at`).
		WithArgs("user-1", "client-1", s.now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	s.mock.ExpectExec(`UPDATE oauth_refresh_tokens SET revoked_at`).
		WithArgs("user-1", "client-1", s.now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	n, err := s.store.RevokeTokensForUserClient(s.ctx, "user-1", "client-1", s.now)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), int64(3), n)
}

func (s *StoreTestSuite) TestUpsertConsent() {
	grant := &storage.ConsentGrant{
		ID:        uuid.NewString(),
		UserID:    "user-1",
		ClientID:  "client-1",
		Scopes:    []string{"read", "annotate"},
		CreatedAt: s.now,
		UpdatedAt: s.now,
	}

	s.mock.ExpectExec(`INSERT INTO oauth_consent_grants`).
		WithArgs(grant.ID, grant.UserID, grant.ClientID, grant.Scopes,
			grant.CreatedAt, grant.UpdatedAt, grant.RevokedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(s.T(), s.store.UpsertConsent(s.ctx, grant))
}

func (s *StoreTestSuite) TestRevokeConsent_NotFound() {
	s.mock.ExpectExec(`UPDATE oauth_consent_grants SET revoked_at`).
		WithArgs("user-1", "client-1", s.now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.store.RevokeConsent(s.ctx, "user-1", "client-1", s.now)
	assert.ErrorIs(s.T(), err, storage.ErrNotFound)
}

func (s *StoreTestSuite) TestWithTransaction_CommitsOnSuccess() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(`UPDATE oauth_access_tokens SET revoked_at = \$2`).
		WithArgs("at-1", s.now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	s.mock.ExpectCommit()

	err := s.store.WithTransaction(s.ctx, func(tx storage.Store) error {
		return tx.RevokeAccessToken(s.ctx, "at-1", s.now)
	})
	assert.NoError(s.T(), err)
}

func (s *StoreTestSuite) TestWithTransaction_RollsBackOnError() {
	boom := errors.New("boom")
	s.mock.ExpectBegin()
	s.mock.ExpectRollback()

	err := s.store.WithTransaction(s.ctx, func(tx storage.Store) error {
		return boom
	})
	assert.ErrorIs(s.T(), err, boom)
}
