package security

import "time"

const (
	// DefaultClockSkewGracePeriod is the default grace period for token
	// expiration checks. It prevents false expiration errors caused by time
	// synchronization drift between the server and its database host.
	// The trade-off is that a token stays usable a few seconds past its true
	// expiry, which is acceptable for opaque tokens validated by hash lookup.
	DefaultClockSkewGracePeriod = 5 * time.Second
)

// IsExpired checks if a credential is expired with the default grace period
func IsExpired(expiresAt time.Time) bool {
	return IsExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsExpiredWithGracePeriod checks if a credential is expired with a custom
// clock skew grace period. A zero expiry means no expiration.
func IsExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}

	return time.Now().After(expiresAt.Add(gracePeriod))
}
