package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/oauth2"
)

// GenerateToken generates a cryptographically secure random token: 32 random
// bytes, base64url-encoded (256 bits of entropy). Collision and guessing
// resistance follow from the entropy alone, so no uniqueness check is needed.
// This is an alias for oauth2.GenerateVerifier(), which produces exactly that.
func GenerateToken() string {
	return oauth2.GenerateVerifier()
}

// GenerateAuthorizationCode generates a raw authorization code with the same
// construction as GenerateToken.
func GenerateAuthorizationCode() string {
	return oauth2.GenerateVerifier()
}

// HashToken returns the SHA-256 hex digest of a credential. It is used
// symmetrically: once when storing, and again when looking up a presented
// credential. No salt is required because inputs are high-entropy random
// secrets, not low-entropy passwords.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidatePKCES256 recomputes BASE64URL(SHA256(ASCII(verifier))) and compares
// it to the stored challenge in constant time (RFC 7636 S256).
func ValidatePKCES256(verifier, challenge string) bool {
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
