package postgres

import (
	"context"
	"fmt"
)

// schema holds the DDL for the OAuth tables. Credential columns store hashes
// only; unique indexes on the hash columns give the indexed lookups the
// services rely on.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS oauth_clients (
		id                         TEXT PRIMARY KEY,
		client_id                  TEXT NOT NULL UNIQUE,
		name                       TEXT NOT NULL DEFAULT '',
		redirect_uris              TEXT[] NOT NULL,
		grant_types                TEXT[] NOT NULL,
		response_types             TEXT[] NOT NULL,
		scopes                     TEXT[],
		public                     BOOLEAN NOT NULL,
		secret_hash                TEXT NOT NULL DEFAULT '',
		token_endpoint_auth_method TEXT NOT NULL,
		client_uri                 TEXT NOT NULL DEFAULT '',
		logo_uri                   TEXT NOT NULL DEFAULT '',
		contacts                   TEXT[],
		tos_uri                    TEXT NOT NULL DEFAULT '',
		policy_uri                 TEXT NOT NULL DEFAULT '',
		software_id                TEXT NOT NULL DEFAULT '',
		software_version           TEXT NOT NULL DEFAULT '',
		created_at                 TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_authorization_codes (
		id                    TEXT PRIMARY KEY,
		code_hash             TEXT NOT NULL UNIQUE,
		client_id             TEXT NOT NULL,
		user_id               TEXT NOT NULL,
		redirect_uri          TEXT NOT NULL,
		scopes                TEXT[] NOT NULL,
		code_challenge        TEXT NOT NULL,
		code_challenge_method TEXT NOT NULL,
		resource              TEXT NOT NULL DEFAULT '',
		state                 TEXT NOT NULL DEFAULT '',
		created_at            TIMESTAMPTZ NOT NULL,
		expires_at            TIMESTAMPTZ NOT NULL,
		used_at               TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_access_tokens (
		id           TEXT PRIMARY KEY,
		token_hash   TEXT NOT NULL UNIQUE,
		client_id    TEXT NOT NULL,
		user_id      TEXT NOT NULL,
		scopes       TEXT[] NOT NULL,
		resource     TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL,
		expires_at   TIMESTAMPTZ NOT NULL,
		revoked_at   TIMESTAMPTZ,
		last_used_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_refresh_tokens (
		id              TEXT PRIMARY KEY,
		token_hash      TEXT NOT NULL UNIQUE,
		client_id       TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		scopes          TEXT[] NOT NULL,
		access_token_id TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		expires_at      TIMESTAMPTZ NOT NULL,
		revoked_at      TIMESTAMPTZ,
		replaced_by_id  TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_consent_grants (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		client_id  TEXT NOT NULL,
		scopes     TEXT[] NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		revoked_at TIMESTAMPTZ,
		UNIQUE (user_id, client_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_oauth_access_tokens_user_client
		ON oauth_access_tokens (user_id, client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_oauth_refresh_tokens_user_client
		ON oauth_refresh_tokens (user_id, client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_oauth_authorization_codes_expires_at
		ON oauth_authorization_codes (expires_at)`,
}

// Migrate creates the OAuth tables and indexes if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
