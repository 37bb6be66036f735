package oic

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func escapeHatchRealm(t *testing.T, hatch EscapeHatch, sleeps *[]time.Duration) (*Realm, *MemoryIdentityStore) {
	t.Helper()
	cfg := &RealmConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		RootURL:      "https://app.example.com",
		Server: &ManualConfiguration{
			Issuer:                "https://idp.example.com",
			AuthorizationEndpoint: "https://idp.example.com/auth",
			TokenEndpoint:         "https://idp.example.com/token",
		},
		EscapeHatch: hatch,
	}
	store := NewMemoryIdentityStore()
	realm, err := NewRealm(cfg, store,
		WithRandom(rand.New(rand.NewSource(1))),
		WithSleep(func(d time.Duration) { *sleeps = append(*sleeps, d) }),
	)
	require.NoError(t, err)
	return realm, store
}

func TestRealm_AuthenticateEscapeHatch(t *testing.T) {
	t.Parallel()
	hatch := EscapeHatch{
		Enabled:  true,
		Username: "admin",
		Secret:   "open-sesame",
		Group:    "breakglass",
	}

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		var sleeps []time.Duration
		realm, store := escapeHatchRealm(t, hatch, &sleeps)

		identity, err := realm.AuthenticateEscapeHatch("admin", "open-sesame")
		require.NoError(err)
		assert.Equal("admin", identity.Username)
		assert.Equal([]string{AuthenticatedAuthority, "breakglass"}, identity.Authorities)
		assert.Equal([]string{AuthenticatedAuthority, "breakglass"}, store.Authorities("admin"))
	})
	t.Run("without-group", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		var sleeps []time.Duration
		noGroup := hatch
		noGroup.Group = ""
		realm, _ := escapeHatchRealm(t, noGroup, &sleeps)

		identity, err := realm.AuthenticateEscapeHatch("admin", "open-sesame")
		require.NoError(err)
		assert.Equal([]string{AuthenticatedAuthority}, identity.Authorities)
	})
	t.Run("failures-share-one-error", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		var sleeps []time.Duration
		realm, _ := escapeHatchRealm(t, hatch, &sleeps)

		disabled := hatch
		disabled.Enabled = false
		disabledRealm, _ := escapeHatchRealm(t, disabled, &sleeps)

		for _, attempt := range []struct {
			realm    *Realm
			username string
			password Secret
		}{
			{realm, "admin", "wrong"},
			{realm, "nobody", "open-sesame"},
			{realm, "", ""},
			{disabledRealm, "admin", "open-sesame"},
		} {
			identity, err := attempt.realm.AuthenticateEscapeHatch(attempt.username, attempt.password)
			assert.Nil(identity)
			assert.True(errors.Is(err, ErrBadCredentials))
		}
	})
	t.Run("every-attempt-sleeps-one-to-two-seconds", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		var sleeps []time.Duration
		realm, _ := escapeHatchRealm(t, hatch, &sleeps)

		_, _ = realm.AuthenticateEscapeHatch("admin", "open-sesame")
		_, _ = realm.AuthenticateEscapeHatch("admin", "wrong")
		_, _ = realm.AuthenticateEscapeHatch("nobody", "nope")

		assert.Len(sleeps, 3)
		for _, d := range sleeps {
			assert.GreaterOrEqual(d, time.Second)
			assert.Less(d, 2*time.Second)
		}
	})
	t.Run("pre-hashed-secret-is-used-as-is", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		var sleeps []time.Duration
		hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
		require.NoError(err)
		hashed := hatch
		hashed.Secret = Secret(hash)
		realm, _ := escapeHatchRealm(t, hashed, &sleeps)
		assert.Equal(hashed.Secret, realm.Config().EscapeHatch.Secret)

		// the hash matches its own plaintext, not the realm default
		identity, err := realm.AuthenticateEscapeHatch("admin", "hunter2")
		require.NoError(err)
		assert.Equal("admin", identity.Username)

		_, err = realm.AuthenticateEscapeHatch("admin", "open-sesame")
		assert.ErrorIs(err, ErrBadCredentials)
	})
}
