package server

import "time"

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL). Required.
	Issuer string

	// SupportedScopes lists the scopes this server understands.
	// If empty, all requested scopes are allowed.
	SupportedScopes []string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// RefreshTokenTTL is how long refresh tokens are valid
	RefreshTokenTTL int64 // seconds, default: 2592000 (30 days)

	// ClockSkewGracePeriod is the grace period for token expiration checks.
	// Prevents false expiration errors due to time synchronization issues.
	ClockSkewGracePeriod int64 // seconds, default: 5

	// ClientMetadataFetchTimeout bounds the fetch of a client ID metadata
	// document from a URL-based client_id
	ClientMetadataFetchTimeout time.Duration // default: 10s

	// TouchTimeout bounds the asynchronous last_used_at write that follows a
	// successful access token validation
	TouchTimeout time.Duration // default: 5s
}

// applyDefaults fills in zero-valued configuration fields
func applyDefaults(config *Config) *Config {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 600
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 3600
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = 2592000
	}
	if config.ClockSkewGracePeriod == 0 {
		config.ClockSkewGracePeriod = 5
	}
	if config.ClientMetadataFetchTimeout == 0 {
		config.ClientMetadataFetchTimeout = 10 * time.Second
	}
	if config.TouchTimeout == 0 {
		config.TouchTimeout = 5 * time.Second
	}
	return config
}

// clockSkewGrace returns the configured grace period as a duration
func (c *Config) clockSkewGrace() time.Duration {
	return time.Duration(c.ClockSkewGracePeriod) * time.Second
}
