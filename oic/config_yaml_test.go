package oic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRealmConfig(t *testing.T) {
	t.Parallel()
	t.Run("well-known-section", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		cfg, err := ParseRealmConfig([]byte(`
clientId: cid
clientSecret: secret
rootUrl: https://app.example.com
pkceEnabled: true
userNameField: preferred_username
groupsFieldName: realm_access.roles
wellKnown:
  wellKnownOpenIDConfigurationUrl: https://idp.example.com/.well-known/openid-configuration
  scopesOverride: openid profile
`))
		require.NoError(err)
		assert.Equal("cid", cfg.ClientID)
		assert.Equal(ClientSecret("secret"), cfg.ClientSecret)
		assert.True(cfg.PKCEEnabled)
		assert.Equal("preferred_username", cfg.UserNameField)
		assert.Equal("realm_access.roles", cfg.GroupsField)

		wk, ok := cfg.Server.(*WellKnownConfiguration)
		require.True(ok)
		assert.Equal("https://idp.example.com/.well-known/openid-configuration", wk.URL)
		assert.Equal("openid profile", wk.ScopesOverride)
	})
	t.Run("manual-section", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		cfg, err := ParseRealmConfig([]byte(`
clientId: cid
clientSecret: secret
rootUrl: https://app.example.com
manual:
  issuer: https://idp.example.com
  authorizationServerUrl: https://idp.example.com/auth
  tokenServerUrl: https://idp.example.com/token
  tokenAuthMethod: client_secret_post
  useRefreshTokens: true
`))
		require.NoError(err)
		manual, ok := cfg.Server.(*ManualConfiguration)
		require.True(ok)
		assert.Equal("https://idp.example.com", manual.Issuer)
		assert.Equal(ClientSecretPost, manual.TokenAuthMethod)
		assert.True(manual.UseRefreshTokens)
	})
	t.Run("legacy-auto-document", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		cfg, err := ParseRealmConfig([]byte(`
clientId: cid
clientSecret: secret
rootUrl: https://app.example.com
automanualconfigure: auto
wellKnownOpenIDConfigurationUrl: https://idp.example.com/.well-known/openid-configuration
overrideScopes: openid email groups
`))
		require.NoError(err)
		wk, ok := cfg.Server.(*WellKnownConfiguration)
		require.True(ok)
		assert.Equal("https://idp.example.com/.well-known/openid-configuration", wk.URL)
		assert.Equal("openid email groups", wk.ScopesOverride)
	})
	t.Run("legacy-flat-document-without-selector", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		cfg, err := ParseRealmConfig([]byte(`
clientId: cid
clientSecret: secret
rootUrl: https://app.example.com
wellKnownOpenIDConfigurationUrl: https://idp.example.com/.well-known/openid-configuration
`))
		require.NoError(err)
		_, ok := cfg.Server.(*WellKnownConfiguration)
		require.True(ok)
	})
	t.Run("legacy-manual-document", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		cfg, err := ParseRealmConfig([]byte(`
clientId: cid
clientSecret: secret
rootUrl: https://app.example.com
automanualconfigure: manual
authorizationServerUrl: https://idp.example.com/auth
tokenServerUrl: https://idp.example.com/token
userInfoServerUrl: https://idp.example.com/userinfo
endSessionUrl: https://idp.example.com/logout
scopes: openid email
tokenAuthMethod: client_secret_post
useRefreshTokens: true
`))
		require.NoError(err)
		manual, ok := cfg.Server.(*ManualConfiguration)
		require.True(ok)
		assert.Equal("https://idp.example.com", manual.Issuer)
		assert.Equal("https://idp.example.com/token", manual.TokenEndpoint)
		// historical documents carried the endpoint without the
		// trailing slash the provider actually serves
		assert.Equal("https://idp.example.com/logout/", manual.EndSessionEndpoint)
		assert.Equal("openid email", manual.Scopes)
		assert.Equal(ClientSecretPost, manual.TokenAuthMethod)
		assert.True(manual.UseRefreshTokens)

		md, err := manual.ToProviderMetadata(nil, nil)
		require.NoError(err)
		assert.True(md.SupportsGrantType(GrantTypeRefreshToken))
	})
	t.Run("no-server-configuration", func(t *testing.T) {
		t.Parallel()
		_, err := ParseRealmConfig([]byte("clientId: cid\nclientSecret: secret\n"))
		assert.ErrorIs(t, err, ErrNilParameter)
	})
	t.Run("invalid-yaml", func(t *testing.T) {
		t.Parallel()
		_, err := ParseRealmConfig([]byte("clientId: [unclosed"))
		assert.Error(t, err)
	})
}

func TestLoadRealmConfig(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	doc := `
clientId: cid
clientSecret: secret
rootUrl: https://app.example.com
wellKnown:
  wellKnownOpenIDConfigurationUrl: https://idp.example.com/.well-known/openid-configuration
escapeHatch:
  enabled: true
  username: admin
  secret: open-sesame
  group: breakglass
loginQueryParameters:
  - key: prompt
    value: consent
logoutQueryParameters:
  - key: federated
`
	cfg, err := LoadRealmConfig(strings.NewReader(doc))
	require.NoError(err)
	assert.True(cfg.EscapeHatch.Enabled)
	assert.Equal("admin", cfg.EscapeHatch.Username)
	assert.Equal([]QueryParameter{{Key: "prompt", Value: "consent"}}, cfg.LoginQueryParameters)
	assert.Equal([]QueryParameter{{Key: "federated"}}, cfg.LogoutQueryParameters)
}
