// Package security provides the cryptographic and operational security
// primitives for the OAuth core: random token and code generation, SHA-256
// credential hashing, PKCE S256 verification, audit logging with PII
// protection, security-event rate limiting, and clock-skew tolerant expiry
// checks.
package security
