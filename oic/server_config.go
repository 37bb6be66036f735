package oic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// TokenAuthMethod selects how the relying party authenticates against
// the token endpoint.
type TokenAuthMethod string

const (
	ClientSecretBasic TokenAuthMethod = "client_secret_basic"
	ClientSecretPost  TokenAuthMethod = "client_secret_post"
)

// ServerConfiguration describes where the provider's endpoints come
// from. Its single capability is producing normalized provider
// metadata; the discovery and manual variants below are the two
// concrete shapes.
type ServerConfiguration interface {
	// ToProviderMetadata produces the normalized metadata, fetching
	// remote documents through the retriever when needed.
	ToProviderMetadata(ctx context.Context, rr *ResourceRetriever) (*ProviderMetadata, error)
}

// WellKnownConfiguration locates the provider through its discovery
// document.
type WellKnownConfiguration struct {
	// URL is the .well-known/openid-configuration document location.
	URL string `yaml:"wellKnownOpenIDConfigurationUrl"`

	// ScopesOverride, when non-empty, replaces the scopes advertised by
	// the discovery document.
	ScopesOverride string `yaml:"scopesOverride,omitempty"`
}

// ToProviderMetadata fetches and decodes the discovery document. The
// protocol collaborator is expected to cache discovery results
// internally; this method does not.
func (c *WellKnownConfiguration) ToProviderMetadata(ctx context.Context, rr *ResourceRetriever) (*ProviderMetadata, error) {
	const op = "WellKnownConfiguration.ToProviderMetadata"
	if c.URL == "" {
		return nil, fmt.Errorf("%s: well known configuration url is empty: %w", op, ErrInvalidParameter)
	}
	if rr == nil {
		return nil, fmt.Errorf("%s: resource retriever is nil: %w", op, ErrNilParameter)
	}
	raw, err := rr.Get(ctx, c.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to fetch discovery document: %w", op, err)
	}
	var md ProviderMetadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("%s: unable to decode discovery document: %w", op, err)
	}
	if md.Issuer == "" {
		return nil, fmt.Errorf("%s: discovery document has no issuer: %w", op, ErrInvalidIssuer)
	}
	if override := strings.Fields(c.ScopesOverride); len(override) > 0 {
		md.ScopesSupported = override
	}
	return &md, nil
}

// ManualConfiguration names the provider endpoints explicitly, for
// providers without a reachable discovery document.
type ManualConfiguration struct {
	Issuer                string          `yaml:"issuer"`
	AuthorizationEndpoint string          `yaml:"authorizationServerUrl"`
	TokenEndpoint         string          `yaml:"tokenServerUrl"`
	UserInfoEndpoint      string          `yaml:"userInfoServerUrl,omitempty"`
	JWKSURI               string          `yaml:"jwksServerUrl,omitempty"`
	EndSessionEndpoint    string          `yaml:"endSessionUrl,omitempty"`
	Scopes                string          `yaml:"scopes,omitempty"`
	TokenAuthMethod       TokenAuthMethod `yaml:"tokenAuthMethod,omitempty"`
	UseRefreshTokens      bool            `yaml:"useRefreshTokens,omitempty"`
}

// ToProviderMetadata synthesizes metadata from the configured
// endpoints. No network calls are made.
func (c *ManualConfiguration) ToProviderMetadata(_ context.Context, _ *ResourceRetriever) (*ProviderMetadata, error) {
	const op = "ManualConfiguration.ToProviderMetadata"
	if c.Issuer == "" {
		return nil, fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter)
	}
	if c.TokenEndpoint == "" {
		return nil, fmt.Errorf("%s: token server url is empty: %w", op, ErrInvalidParameter)
	}
	if c.AuthorizationEndpoint == "" {
		return nil, fmt.Errorf("%s: authorization server url is empty: %w", op, ErrInvalidParameter)
	}
	md := &ProviderMetadata{
		Issuer:                c.Issuer,
		AuthorizationEndpoint: c.AuthorizationEndpoint,
		TokenEndpoint:         c.TokenEndpoint,
		UserInfoEndpoint:      c.UserInfoEndpoint,
		JWKSURI:               c.JWKSURI,
		EndSessionEndpoint:    c.EndSessionEndpoint,
		ScopesSupported:       strings.Fields(c.Scopes),
		GrantTypesSupported:   []string{GrantTypeAuthorizationCode},
	}
	if c.UseRefreshTokens {
		md.GrantTypesSupported = append(md.GrantTypesSupported, GrantTypeRefreshToken)
	}
	return md, nil
}
