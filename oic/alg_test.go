package oic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterNonCompliantAlgs(t *testing.T) {
	t.Parallel()
	t.Run("not-restricted-is-a-noop", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		md := &ProviderMetadata{
			IDTokenJWSAlgs: []Alg{RS256, EdDSA, "none"},
			IDTokenJWEAlgs: []Alg{"RSA1_5"},
		}
		FilterNonCompliantAlgs(md, false)
		assert.Equal([]Alg{RS256, EdDSA, "none"}, md.IDTokenJWSAlgs)
		assert.Equal([]Alg{"RSA1_5"}, md.IDTokenJWEAlgs)
	})
	t.Run("strips-unapproved-signing-algs", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		md := &ProviderMetadata{
			IDTokenJWSAlgs:  []Alg{RS256, ES256, EdDSA, "none"},
			UserInfoJWSAlgs: []Alg{PS512, EdDSA},
		}
		FilterNonCompliantAlgs(md, true)
		assert.Equal([]Alg{RS256, ES256}, md.IDTokenJWSAlgs)
		assert.Equal([]Alg{PS512}, md.UserInfoJWSAlgs)
	})
	t.Run("keeps-symmetric-signing-algs", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		md := &ProviderMetadata{IDTokenJWSAlgs: []Alg{HS256, HS384, HS512}}
		FilterNonCompliantAlgs(md, true)
		assert.Equal([]Alg{HS256, HS384, HS512}, md.IDTokenJWSAlgs)
	})
	t.Run("strips-rsa15-key-management", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		md := &ProviderMetadata{
			IDTokenJWEAlgs: []Alg{"RSA1_5", "RSA-OAEP", "ECDH-ES"},
			IDTokenJWEEncs: []Alg{"A128CBC-HS256", "A128CBC+HS256"},
		}
		FilterNonCompliantAlgs(md, true)
		assert.Equal([]Alg{"RSA-OAEP", "ECDH-ES"}, md.IDTokenJWEAlgs)
		assert.Equal([]Alg{"A128CBC-HS256"}, md.IDTokenJWEEncs)
	})
	t.Run("absent-lists-stay-absent", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		md := &ProviderMetadata{}
		FilterNonCompliantAlgs(md, true)
		assert.Nil(md.IDTokenJWSAlgs)
		assert.Nil(md.IDTokenJWEAlgs)
	})
	t.Run("fully-rejected-list-becomes-empty", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		md := &ProviderMetadata{RequestObjectJWSAlgs: []Alg{EdDSA, "none"}}
		FilterNonCompliantAlgs(md, true)
		assert.NotNil(md.RequestObjectJWSAlgs)
		assert.Empty(md.RequestObjectJWSAlgs)
	})
	t.Run("nil-metadata", func(t *testing.T) {
		t.Parallel()
		FilterNonCompliantAlgs(nil, true)
	})
}
