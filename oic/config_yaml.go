package oic

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawRealmConfig adds the server-configuration variants and the legacy
// flat endpoint fields to the realm configuration, so one document
// shape covers both current and historical configs.
type rawRealmConfig struct {
	RealmConfig `yaml:",inline"`

	WellKnown *WellKnownConfiguration `yaml:"wellKnown,omitempty"`
	Manual    *ManualConfiguration    `yaml:"manual,omitempty"`

	// legacy flat fields, migrated into a server configuration
	AutoManualConfigure    string          `yaml:"automanualconfigure,omitempty"`
	WellKnownURL           string          `yaml:"wellKnownOpenIDConfigurationUrl,omitempty"`
	OverrideScopes         string          `yaml:"overrideScopes,omitempty"`
	TokenServerURL         string          `yaml:"tokenServerUrl,omitempty"`
	AuthorizationServerURL string          `yaml:"authorizationServerUrl,omitempty"`
	UserInfoServerURL      string          `yaml:"userInfoServerUrl,omitempty"`
	JWKSServerURL          string          `yaml:"jwksServerUrl,omitempty"`
	EndSessionURL          string          `yaml:"endSessionUrl,omitempty"`
	LegacyTokenAuthMethod  TokenAuthMethod `yaml:"tokenAuthMethod,omitempty"`
	LegacyScopes           string          `yaml:"scopes,omitempty"`
	UseRefreshTokens       bool            `yaml:"useRefreshTokens,omitempty"`
}

// LoadRealmConfig reads a YAML realm configuration. Historical flat
// documents that predate the wellKnown/manual server sections are
// migrated on the fly. The result is not yet validated; NewRealm does
// that.
func LoadRealmConfig(reader io.Reader) (*RealmConfig, error) {
	const op = "LoadRealmConfig"
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read config: %w", op, err)
	}
	return ParseRealmConfig(raw)
}

// ParseRealmConfig decodes a YAML realm configuration document.
func ParseRealmConfig(data []byte) (*RealmConfig, error) {
	const op = "ParseRealmConfig"
	var raw rawRealmConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: unable to decode config: %w", op, err)
	}
	cfg := raw.RealmConfig
	server, err := raw.resolveServer()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg.Server = server
	return &cfg, nil
}

// resolveServer picks the server configuration, preferring the current
// sections over the legacy flat fields.
func (raw *rawRealmConfig) resolveServer() (ServerConfiguration, error) {
	switch {
	case raw.Manual != nil:
		return raw.Manual, nil
	case raw.WellKnown != nil:
		return raw.WellKnown, nil
	}
	return raw.migrateLegacyServer()
}

// migrateLegacyServer rebuilds the server configuration from the flat
// fields of historical documents. The automanualconfigure selector
// wins when present; otherwise whichever set of fields is populated
// decides.
func (raw *rawRealmConfig) migrateLegacyServer() (ServerConfiguration, error) {
	mode := strings.ToLower(raw.AutoManualConfigure)
	auto := mode == "auto" || (mode == "" && raw.WellKnownURL != "")
	manual := mode == "manual" || (mode == "" && raw.TokenServerURL != "")
	switch {
	case auto:
		return &WellKnownConfiguration{
			URL:            raw.WellKnownURL,
			ScopesOverride: raw.OverrideScopes,
		}, nil
	case manual:
		endSession := raw.EndSessionURL
		if endSession != "" {
			endSession += "/"
		}
		return &ManualConfiguration{
			Issuer:                legacyIssuer(raw.TokenServerURL),
			AuthorizationEndpoint: raw.AuthorizationServerURL,
			TokenEndpoint:         raw.TokenServerURL,
			UserInfoEndpoint:      raw.UserInfoServerURL,
			JWKSURI:               raw.JWKSServerURL,
			EndSessionEndpoint:    endSession,
			Scopes:                raw.LegacyScopes,
			TokenAuthMethod:       raw.LegacyTokenAuthMethod,
			UseRefreshTokens:      raw.UseRefreshTokens,
		}, nil
	}
	return nil, fmt.Errorf("no server configuration found: %w", ErrNilParameter)
}

// legacyIssuer derives an issuer for flat manual documents, which
// never carried one. The token endpoint's origin is the closest
// available stand-in.
func legacyIssuer(tokenServerURL string) string {
	u, err := url.Parse(tokenServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
