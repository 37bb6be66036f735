package oic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *RealmConfig {
	return &RealmConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		RootURL:      "https://app.example.com",
		Server: &ManualConfiguration{
			Issuer:                "https://idp.example.com",
			AuthorizationEndpoint: "https://idp.example.com/auth",
			TokenEndpoint:         "https://idp.example.com/token",
		},
	}
}

func TestRealmConfig_Validate(t *testing.T) {
	t.Parallel()
	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, validTestConfig().Validate())
	})
	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		var cfg *RealmConfig
		assert.ErrorIs(t, cfg.Validate(), ErrNilParameter)
	})
	t.Run("missing-fields-accumulate", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		cfg := &RealmConfig{}
		err := cfg.Validate()
		assert.ErrorIs(err, ErrInvalidParameter)
		assert.ErrorIs(err, ErrNilParameter)
		assert.Contains(err.Error(), "client id is empty")
		assert.Contains(err.Error(), "client secret is empty")
		assert.Contains(err.Error(), "root url is empty")
		assert.Contains(err.Error(), "server configuration is missing")
	})
	t.Run("restricted-cryptography-conflicts", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			name string
			mod  func(cfg *RealmConfig)
		}{
			{"disable-ssl", func(cfg *RealmConfig) { cfg.DisableSSLVerification = true }},
			{"disable-token-verification", func(cfg *RealmConfig) { cfg.DisableTokenVerification = true }},
			{"escape-hatch", func(cfg *RealmConfig) { cfg.EscapeHatch.Enabled = true }},
		}
		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				assert := assert.New(t)
				cfg := validTestConfig()
				cfg.RestrictedCryptography = true
				tt.mod(cfg)
				assert.True(errors.Is(cfg.Validate(), ErrConfigIncompatible))

				// fine when restriction is off
				cfg.RestrictedCryptography = false
				assert.NoError(cfg.Validate())
			})
		}
	})
	t.Run("all-restricted-conflicts-reported-at-once", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		cfg := validTestConfig()
		cfg.RestrictedCryptography = true
		cfg.DisableSSLVerification = true
		cfg.DisableTokenVerification = true
		cfg.EscapeHatch.Enabled = true
		err := cfg.Validate()
		assert.Contains(err.Error(), "SSL verification")
		assert.Contains(err.Error(), "token verification")
		assert.Contains(err.Error(), "escape hatch")
	})
}

func TestNewRealm(t *testing.T) {
	t.Parallel()
	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		realm, err := NewRealm(validTestConfig(), NewMemoryIdentityStore())
		require.NoError(err)
		assert.Equal("sub", realm.Config().UserNameField)
		assert.Equal("picture", realm.Config().AvatarField)
		assert.Equal(DefaultAllowedClockSkew, realm.Config().AllowedClockSkew())
		assert.True(realm.IdStrategy().Equals("Alice", "alice"))
	})
	t.Run("nil-store", func(t *testing.T) {
		t.Parallel()
		_, err := NewRealm(validTestConfig(), nil)
		assert.ErrorIs(t, err, ErrNilParameter)
	})
	t.Run("invalid-config", func(t *testing.T) {
		t.Parallel()
		_, err := NewRealm(&RealmConfig{}, NewMemoryIdentityStore())
		assert.Error(t, err)
	})
	t.Run("case-sensitive-ids", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		cfg := validTestConfig()
		cfg.CaseSensitiveUserIds = true
		realm, err := NewRealm(cfg, NewMemoryIdentityStore())
		require.NoError(err)
		assert.False(realm.IdStrategy().Equals("Alice", "alice"))
		assert.True(realm.IdStrategy().Equals("alice", "alice"))
	})
	t.Run("explicit-clock-skew", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		cfg := validTestConfig()
		skew := int64(5)
		cfg.AllowedClockSkewSeconds = &skew
		realm, err := NewRealm(cfg, NewMemoryIdentityStore())
		require.NoError(err)
		assert.Equal("5s", realm.Config().AllowedClockSkew().String())
	})
}

func TestRealm_FieldSetters(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	realm, err := NewRealm(validTestConfig(), NewMemoryIdentityStore())
	require.NoError(err)

	realm.SetUserNameField("preferred_username")
	assert.Equal("preferred_username", realm.Config().UserNameField)
	assert.Equal("preferred_username", realm.userNamePath.Source())

	// empty falls back to the standard claim
	realm.SetUserNameField("")
	assert.Equal("sub", realm.Config().UserNameField)

	realm.SetGroupsField("realm_access.roles")
	assert.Equal("realm_access.roles", realm.groupsPath.Source())

	// invalid expressions compile to no path rather than failing
	realm.SetEmailField(`"unterminated`)
	assert.Nil(realm.emailPath)
}

func TestRealm_SetEscapeHatchSecret(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	cfg := validTestConfig()
	cfg.EscapeHatch = EscapeHatch{Enabled: true, Username: "admin", Secret: "plaintext"}
	realm, err := NewRealm(cfg, NewMemoryIdentityStore())
	require.NoError(err)

	// plaintext is re-hashed at construction time
	stored := realm.Config().EscapeHatch.Secret
	assert.NotEqual(Secret("plaintext"), stored)
	assert.Regexp(`^\$[^$]+\$\d+\$[./0-9A-Za-z]{53}$`, string(stored))

	// an existing hash is kept verbatim
	realm.SetEscapeHatchSecret(stored)
	assert.Equal(stored, realm.Config().EscapeHatch.Secret)

	realm.SetEscapeHatchSecret("")
	assert.Empty(realm.Config().EscapeHatch.Secret)
}
