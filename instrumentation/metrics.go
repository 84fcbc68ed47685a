package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the authorization server
type Metrics struct {
	// Authorization code lifecycle
	CodesIssued        metric.Int64Counter
	CodesRedeemed      metric.Int64Counter
	CodeRedeemFailed   metric.Int64Counter
	CodeReplayDetected metric.Int64Counter

	// Token lifecycle
	TokenPairsIssued    metric.Int64Counter
	TokensRotated       metric.Int64Counter
	RotationReplays     metric.Int64Counter
	TokensRevoked       metric.Int64Counter
	TokenValidations    metric.Int64Counter
	PKCEValidationFails metric.Int64Counter

	// Clients and consent
	ClientsRegistered  metric.Int64Counter
	ConsentGrants      metric.Int64Counter
	ConsentRevocations metric.Int64Counter

	// Client metadata documents
	MetadataFetchTotal    metric.Int64Counter
	MetadataFetchDuration metric.Float64Histogram

	// Storage
	StorageOperationDuration metric.Float64Histogram
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	meter := inst.Meter("server")
	m := &Metrics{}

	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
		unit        string
	}{
		{&m.CodesIssued, "oauth.authorization_code.issued", "Number of authorization codes issued", "{code}"},
		{&m.CodesRedeemed, "oauth.authorization_code.redeemed", "Number of authorization codes redeemed for tokens", "{code}"},
		{&m.CodeRedeemFailed, "oauth.authorization_code.redeem_failed", "Number of failed authorization code redemptions", "{attempt}"},
		{&m.CodeReplayDetected, "oauth.authorization_code.replay_detected", "Number of redemption attempts against already-used codes", "{attempt}"},
		{&m.TokenPairsIssued, "oauth.token.pairs_issued", "Number of access/refresh token pairs issued", "{pair}"},
		{&m.TokensRotated, "oauth.token.rotated", "Number of refresh token rotations", "{rotation}"},
		{&m.RotationReplays, "oauth.token.rotation_replay_detected", "Number of presentations of already-rotated refresh tokens", "{attempt}"},
		{&m.TokensRevoked, "oauth.token.revoked", "Number of tokens revoked", "{revocation}"},
		{&m.TokenValidations, "oauth.token.validations", "Number of access token validations", "{validation}"},
		{&m.PKCEValidationFails, "oauth.pkce.validation_failed", "Number of failed PKCE verifications", "{attempt}"},
		{&m.ClientsRegistered, "oauth.client.registered", "Number of dynamically registered clients", "{client}"},
		{&m.ConsentGrants, "oauth.consent.granted", "Number of consent grants recorded", "{grant}"},
		{&m.ConsentRevocations, "oauth.consent.revoked", "Number of consent grants revoked", "{revocation}"},
		{&m.MetadataFetchTotal, "oauth.client_metadata.fetches", "Number of client metadata document fetches", "{fetch}"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(
			c.name,
			metric.WithDescription(c.description),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.target = counter
	}

	var err error
	m.MetadataFetchDuration, err = meter.Float64Histogram(
		"oauth.client_metadata.fetch.duration",
		metric.WithDescription("Client metadata document fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client_metadata.fetch.duration histogram: %w", err)
	}

	m.StorageOperationDuration, err = meter.Float64Histogram(
		"oauth.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	return m, nil
}

// RecordCodeIssued records an authorization code issuance
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.CodesIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordCodeRedeemed records a successful authorization code redemption
func (m *Metrics) RecordCodeRedeemed(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.CodesRedeemed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordCodeRedeemFailed records a failed redemption attempt
func (m *Metrics) RecordCodeRedeemFailed(ctx context.Context, clientID, reason string) {
	if m == nil {
		return
	}
	m.CodeRedeemFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("reason", reason),
	))
}

// RecordCodeReplay records a redemption attempt against a consumed code
func (m *Metrics) RecordCodeReplay(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.CodeReplayDetected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordTokenPairIssued records issuance of an access/refresh token pair
func (m *Metrics) RecordTokenPairIssued(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.TokenPairsIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordTokenRotated records a refresh token rotation
func (m *Metrics) RecordTokenRotated(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.TokensRotated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordRotationReplay records presentation of an already-rotated refresh token
func (m *Metrics) RecordRotationReplay(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.RotationReplays.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordTokensRevoked records token revocations
func (m *Metrics) RecordTokensRevoked(ctx context.Context, clientID string, count int64) {
	if m == nil || count == 0 {
		return
	}
	m.TokensRevoked.Add(ctx, count, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordTokenValidation records an access token validation attempt
func (m *Metrics) RecordTokenValidation(ctx context.Context, valid bool) {
	if m == nil {
		return
	}
	m.TokenValidations.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("valid", valid),
	))
}

// RecordPKCEValidationFailed records a failed PKCE verification
func (m *Metrics) RecordPKCEValidationFailed(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.PKCEValidationFails.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordClientRegistered records a dynamic client registration
func (m *Metrics) RecordClientRegistered(ctx context.Context, public bool) {
	if m == nil {
		return
	}
	m.ClientsRegistered.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("public", public),
	))
}

// RecordConsentGranted records a consent grant upsert
func (m *Metrics) RecordConsentGranted(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.ConsentGrants.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordConsentRevoked records a consent revocation
func (m *Metrics) RecordConsentRevoked(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.ConsentRevocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordMetadataFetch records a client metadata document fetch
func (m *Metrics) RecordMetadataFetch(ctx context.Context, success bool, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.MetadataFetchTotal.Add(ctx, 1, attrs)
	m.MetadataFetchDuration.Record(ctx, durationMs, attrs)
}

// RecordStorageOperation records the duration of a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation string, durationMs float64) {
	if m == nil {
		return
	}
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
