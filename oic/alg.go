package oic

// Alg represents asymmetric and symmetric signing algorithms, JWE key
// management algorithms and JWE content encryption methods as the
// provider advertises them.
type Alg string

const (
	// JOSE asymmetric signing algorithms
	RS256 Alg = "RS256"
	RS384 Alg = "RS384"
	RS512 Alg = "RS512"
	ES256 Alg = "ES256"
	ES384 Alg = "ES384"
	ES512 Alg = "ES512"
	PS256 Alg = "PS256"
	PS384 Alg = "PS384"
	PS512 Alg = "PS512"

	// JOSE symmetric signing algorithms
	HS256 Alg = "HS256"
	HS384 Alg = "HS384"
	HS512 Alg = "HS512"

	EdDSA Alg = "EdDSA"
)

// approvedJWSAlgs are the signing algorithms permitted in
// restricted-cryptography mode.
var approvedJWSAlgs = map[Alg]bool{
	RS256: true, RS384: true, RS512: true,
	ES256: true, ES384: true, ES512: true,
	PS256: true, PS384: true, PS512: true,
	HS256: true, HS384: true, HS512: true,
}

// approvedJWEAlgs are the key management algorithms permitted in
// restricted-cryptography mode. RSA1_5 is notably absent.
var approvedJWEAlgs = map[Alg]bool{
	"RSA-OAEP": true, "RSA-OAEP-256": true,
	"A128KW": true, "A192KW": true, "A256KW": true,
	"ECDH-ES": true, "ECDH-ES+A128KW": true, "ECDH-ES+A192KW": true, "ECDH-ES+A256KW": true,
	"A128GCMKW": true, "A192GCMKW": true, "A256GCMKW": true,
	"PBES2-HS256+A128KW": true, "PBES2-HS384+A192KW": true, "PBES2-HS512+A256KW": true,
	"dir": true,
}

// approvedJWEEncs are the content encryption methods permitted in
// restricted-cryptography mode.
var approvedJWEEncs = map[Alg]bool{
	"A128CBC-HS256": true, "A192CBC-HS384": true, "A256CBC-HS512": true,
	"A128GCM": true, "A192GCM": true, "A256GCM": true,
}

func filterAlgs(algs []Alg, approved map[Alg]bool) []Alg {
	if algs == nil {
		return nil
	}
	// An empty result is allowed: the related feature becomes
	// unavailable instead of erroring.
	filtered := make([]Alg, 0, len(algs))
	for _, a := range algs {
		if approved[a] {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

// FilterNonCompliantAlgs strips algorithms that are not on the approved
// allow-lists from every advertised algorithm list of the metadata when
// restricted-cryptography mode is active. It mutates md in place and is
// a no-op otherwise. It must run before any token validator is built
// from the metadata.
func FilterNonCompliantAlgs(md *ProviderMetadata, restricted bool) {
	if md == nil || !restricted {
		return
	}

	md.IDTokenJWSAlgs = filterAlgs(md.IDTokenJWSAlgs, approvedJWSAlgs)
	md.UserInfoJWSAlgs = filterAlgs(md.UserInfoJWSAlgs, approvedJWSAlgs)
	md.TokenEndpointJWSAlgs = filterAlgs(md.TokenEndpointJWSAlgs, approvedJWSAlgs)
	md.IntrospectionJWSAlgs = filterAlgs(md.IntrospectionJWSAlgs, approvedJWSAlgs)
	md.RevocationJWSAlgs = filterAlgs(md.RevocationJWSAlgs, approvedJWSAlgs)
	md.RequestObjectJWSAlgs = filterAlgs(md.RequestObjectJWSAlgs, approvedJWSAlgs)
	md.AuthorizationJWSAlgs = filterAlgs(md.AuthorizationJWSAlgs, approvedJWSAlgs)
	md.BackChannelAuthJWSAlgs = filterAlgs(md.BackChannelAuthJWSAlgs, approvedJWSAlgs)
	md.ClientRegistrationJWSAlgs = filterAlgs(md.ClientRegistrationJWSAlgs, approvedJWSAlgs)
	md.DPoPJWSAlgs = filterAlgs(md.DPoPJWSAlgs, approvedJWSAlgs)

	md.IDTokenJWEAlgs = filterAlgs(md.IDTokenJWEAlgs, approvedJWEAlgs)
	md.UserInfoJWEAlgs = filterAlgs(md.UserInfoJWEAlgs, approvedJWEAlgs)
	md.RequestObjectJWEAlgs = filterAlgs(md.RequestObjectJWEAlgs, approvedJWEAlgs)
	md.AuthorizationJWEAlgs = filterAlgs(md.AuthorizationJWEAlgs, approvedJWEAlgs)

	md.IDTokenJWEEncs = filterAlgs(md.IDTokenJWEEncs, approvedJWEEncs)
	md.UserInfoJWEEncs = filterAlgs(md.UserInfoJWEEncs, approvedJWEEncs)
	md.RequestObjectJWEEncs = filterAlgs(md.RequestObjectJWEEncs, approvedJWEEncs)
	md.AuthorizationJWEEncs = filterAlgs(md.AuthorizationJWEEncs, approvedJWEEncs)
}
