// Package credential resolves bearer credentials for the Spotify Web API
// through an ordered chain of acquisition strategies backed by an in-memory cache.
package credential

import (
	"errors"
	"time"
)

const (
	// KindBearer is the only credential kind issued.
	KindBearer = "Bearer"

	// SafetyMargin is subtracted from every issued lifetime so a credential is
	// never served after the upstream considers it expired.
	SafetyMargin = 60 * time.Second

	// DefaultLifetime is assumed when an upstream does not report one.
	DefaultLifetime = time.Hour
)

var (
	// ErrUnavailable is returned by a strategy that cannot produce a credential,
	// either because it is not configured or because the upstream refused.
	ErrUnavailable = errors.New("credential strategy unavailable")

	// ErrNoCredentialAvailable is returned by Broker.Resolve when every strategy,
	// including the configured fallback, failed.
	ErrNoCredentialAvailable = errors.New("no credential available")
)

// Credential is an immutable bearer credential.
type Credential struct {
	Value     string    `json:"value"`
	Kind      string    `json:"kind"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Source    string    `json:"source"`
}

// Issue builds a credential whose expiry is the issued lifetime minus SafetyMargin.
// A lifetime shorter than the margin yields a credential that is already expired.
func Issue(value string, lifetime time.Duration, issuedAt time.Time, source string) Credential {
	expiresAt := issuedAt
	if lifetime > SafetyMargin {
		expiresAt = issuedAt.Add(lifetime - SafetyMargin)
	}
	return Credential{
		Value:     value,
		Kind:      KindBearer,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Source:    source,
	}
}

// Valid reports whether the credential may still be served at now.
func (c Credential) Valid(now time.Time) bool {
	return c.Value != "" && now.Before(c.ExpiresAt)
}

// ExpiresIn returns the remaining lifetime in whole seconds, never negative.
func (c Credential) ExpiresIn(now time.Time) int {
	remaining := c.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}

// IsZero reports whether c holds no value.
func (c Credential) IsZero() bool {
	return c.Value == ""
}
