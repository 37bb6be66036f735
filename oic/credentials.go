package oic

import (
	"encoding/json"
	"time"
)

// ClientSecret is the relying party secret
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// AccessToken is an oauth access_token
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// IdToken is an oidc id_token in its raw compact serialization.
type IdToken string

// RedactedIdToken is the redacted string or json for an oidc id_token
const RedactedIdToken = "[REDACTED: id_token]"

// String will redact the token
func (t IdToken) String() string {
	return RedactedIdToken
}

// MarshalJSON will redact the token
func (t IdToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIdToken)
}

// RefreshToken is an oauth refresh_token
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for an oauth refresh_token
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token
func (t RefreshToken) String() string {
	return RedactedRefreshToken
}

// MarshalJSON will redact the token
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}

// Clock returns the current time and is substitutable for deterministic
// tests. All expiry comparisons in the package go through a Clock.
type Clock func() time.Time

// Credentials is the per-identity token record established by a
// successful login or refresh. Records are superseded, never mutated:
// a refresh persists a new record and logout persists a cleared one.
type Credentials struct {
	AccessToken  AccessToken
	IdToken      IdToken
	RefreshToken RefreshToken

	// IssuedAt is when the record was established.
	IssuedAt time.Time

	// ExpiresAt is IssuedAt plus the access token lifetime plus the
	// realm's clock skew allowance, folded in once at construction
	// time. Zero when the provider did not state a lifetime, in which
	// case the record never expires.
	ExpiresAt time.Time
}

// NewCredentials builds a Credentials record. A zero lifetime means the
// provider did not state one and the record will never report expiry.
// The skew allowance widens the lifetime so that requests arriving just
// after nominal expiry are not bounced for minor clock drift.
func NewCredentials(accessToken AccessToken, idToken IdToken, refreshToken RefreshToken, lifetime time.Duration, issuedAt time.Time, allowedSkew time.Duration) *Credentials {
	c := &Credentials{
		AccessToken:  accessToken,
		IdToken:      idToken,
		RefreshToken: refreshToken,
		IssuedAt:     issuedAt,
	}
	if lifetime > 0 {
		c.ExpiresAt = issuedAt.Add(lifetime + allowedSkew)
	}
	return c
}

// Expired reports whether the record is expired at the given instant.
// The boundary itself counts as expired.
func (c *Credentials) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// Cleared returns a copy of the record with every token value removed
// and an expiry stamped at issuedAt, so the identity reads as logged
// out and no refresh is possible, while timestamp bookkeeping stays
// consistent for API-token style access.
func (c *Credentials) Cleared(issuedAt time.Time) *Credentials {
	return &Credentials{
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt,
	}
}
