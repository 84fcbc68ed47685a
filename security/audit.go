package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogTokenIssued logs when a token pair is issued
func (a *Auditor) LogTokenIssued(userID, clientID string, scopes []string) {
	a.LogEvent(Event{
		Type:     EventTokenIssued,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"scopes": scopes,
		},
	})
}

// LogTokenRotated logs when a refresh token is rotated
func (a *Auditor) LogTokenRotated(userID, clientID string, generationHint string) {
	a.LogEvent(Event{
		Type:     EventTokenRotated,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"replaced_by": generationHint,
		},
	})
}

// LogAuthFailure logs an authentication failure
func (a *Auditor) LogAuthFailure(userID, clientID, reason string) {
	a.LogEvent(Event{
		Type:     EventAuthFailure,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogClientRegistered logs when a new client is registered
func (a *Auditor) LogClientRegistered(clientID string, public bool) {
	a.LogEvent(Event{
		Type:     EventClientRegistered,
		ClientID: clientID,
		Details: map[string]any{
			"public": public,
		},
	})
}

// LogConsentRecorded logs when a user grants consent to a client
func (a *Auditor) LogConsentRecorded(userID, clientID string, scopes []string) {
	a.LogEvent(Event{
		Type:     EventConsentRecorded,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"scopes": scopes,
		},
	})
}

// LogConsentRevoked logs when a user revokes consent from a client
func (a *Auditor) LogConsentRevoked(userID, clientID string) {
	a.LogEvent(Event{
		Type:     EventConsentRevoked,
		UserID:   userID,
		ClientID: clientID,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
