// Package server implements the OAuth 2.1 authorization server core embedded
// in the reader application: PKCE-bound single-use authorization codes,
// access/refresh token lifecycle with rotation, per-client consent, dynamic
// client registration (RFC 7591), and URL-based client resolution via client
// ID metadata documents.
package server

import (
	"fmt"
	"log/slog"

	"github.com/readerd/oauth/instrumentation"
	"github.com/readerd/oauth/security"
	"github.com/readerd/oauth/storage"
)

// safeTruncate safely truncates a string to maxLen characters without
// panicking. Used when logging prefixes of credentials.
func safeTruncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// Server implements the OAuth 2.1 authorization server core. It owns client
// resolution and registration, authorization code and token lifecycle, and
// consent, delegating persistence to a storage.Store. HTTP routing, login,
// and the consent UI belong to the embedding application.
type Server struct {
	store storage.Store

	Auditor                  *security.Auditor
	SecurityEventRateLimiter *security.RateLimiter // throttles security-event log flooding
	Logger                   *slog.Logger
	Config                   *Config

	instrumentation *instrumentation.Instrumentation
}

// New creates a new OAuth server
func New(store storage.Store, config *Config, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applyDefaults(config)

	if config.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	return &Server{
		store:  store,
		Config: config,
		Logger: logger,
	}, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetSecurityEventRateLimiter sets the rate limiter for security event logging
func (s *Server) SetSecurityEventRateLimiter(rl *security.RateLimiter) {
	s.SecurityEventRateLimiter = rl
}

// SetInstrumentation sets the OpenTelemetry instrumentation
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
}

// metrics returns the metric recorder, nil when instrumentation is unset.
// All Record* methods are nil-safe.
func (s *Server) metrics() *instrumentation.Metrics {
	if s.instrumentation == nil {
		return nil
	}
	return s.instrumentation.Metrics()
}

// allowSecurityEventLog reports whether a security event for the given key
// should be logged, consulting the rate limiter when one is configured
func (s *Server) allowSecurityEventLog(key string) bool {
	if s.SecurityEventRateLimiter == nil {
		return true
	}
	return s.SecurityEventRateLimiter.Allow(key)
}
