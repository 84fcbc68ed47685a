package security

// Event type constants for security audit logging.
// These constants ensure consistency across the codebase and prevent typos
// when logging security-relevant events.
const (
	// Token lifecycle events

	// EventTokenIssued is logged when a new token pair is issued to a client
	EventTokenIssued = "token_issued"

	// EventTokenRotated is logged when a refresh token is rotated
	EventTokenRotated = "token_rotated"

	// EventTokenRevoked is logged when a single token is revoked
	EventTokenRevoked = "token_revoked"

	// EventClientTokensRevoked is logged when all tokens for a user+client pair are revoked
	EventClientTokensRevoked = "client_tokens_revoked" //nolint:gosec // G101: event type name, not a credential

	// EventRotatedTokenReplayed is logged when a revoked-and-replaced refresh
	// token is presented again; the rotation chain identifies the successor
	EventRotatedTokenReplayed = "rotated_token_replayed"

	// Authorization code events

	// EventAuthorizationCodeIssued is logged when an authorization code is issued
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAuthorizationCodeRedeemed is logged when a code is exchanged for tokens
	EventAuthorizationCodeRedeemed = "authorization_code_redeemed"

	// EventAuthorizationCodeReplayed is logged when a used code is presented again
	EventAuthorizationCodeReplayed = "authorization_code_replayed"

	// EventPKCEValidationFailed is logged when a code_verifier does not match the challenge
	EventPKCEValidationFailed = "pkce_validation_failed"

	// Client events

	// EventClientRegistered is logged when a new OAuth client is registered
	EventClientRegistered = "client_registered"

	// EventClientRegistrationRejected is logged when registration metadata fails validation
	EventClientRegistrationRejected = "client_registration_rejected"

	// EventClientMetadataFetched is logged when a Client ID Metadata Document is fetched
	EventClientMetadataFetched = "client_metadata_fetched"

	// EventClientMetadataRejected is logged when a fetched document fails validation
	EventClientMetadataRejected = "client_metadata_rejected"

	// Consent events

	// EventConsentRecorded is logged when a user grants or re-grants consent
	EventConsentRecorded = "consent_recorded"

	// EventConsentRevoked is logged when a user revokes consent
	EventConsentRevoked = "consent_revoked"

	// EventAuthFailure is logged for generic authentication failures
	EventAuthFailure = "auth_failure"
)
