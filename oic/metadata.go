package oic

// GrantTypeRefreshToken is the grant the provider must advertise for
// the refresh flow to be attempted.
const GrantTypeRefreshToken = "refresh_token"

// GrantTypeAuthorizationCode is the grant used by the login flow.
const GrantTypeAuthorizationCode = "authorization_code"

// ProviderMetadata is the normalized description of the identity
// provider, either fetched from its discovery document or synthesized
// from manually configured endpoints. It is immutable per realm
// configuration except for the in-place algorithm filtering applied by
// FilterNonCompliantAlgs.
type ProviderMetadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	UserInfoEndpoint      string   `json:"userinfo_endpoint,omitempty"`
	JWKSURI               string   `json:"jwks_uri,omitempty"`
	EndSessionEndpoint    string   `json:"end_session_endpoint,omitempty"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
	GrantTypesSupported   []string `json:"grant_types_supported,omitempty"`

	IDTokenJWSAlgs []Alg `json:"id_token_signing_alg_values_supported,omitempty"`
	IDTokenJWEAlgs []Alg `json:"id_token_encryption_alg_values_supported,omitempty"`
	IDTokenJWEEncs []Alg `json:"id_token_encryption_enc_values_supported,omitempty"`

	UserInfoJWSAlgs []Alg `json:"userinfo_signing_alg_values_supported,omitempty"`
	UserInfoJWEAlgs []Alg `json:"userinfo_encryption_alg_values_supported,omitempty"`
	UserInfoJWEEncs []Alg `json:"userinfo_encryption_enc_values_supported,omitempty"`

	TokenEndpointJWSAlgs []Alg `json:"token_endpoint_auth_signing_alg_values_supported,omitempty"`
	IntrospectionJWSAlgs []Alg `json:"introspection_endpoint_auth_signing_alg_values_supported,omitempty"`
	RevocationJWSAlgs    []Alg `json:"revocation_endpoint_auth_signing_alg_values_supported,omitempty"`

	RequestObjectJWSAlgs []Alg `json:"request_object_signing_alg_values_supported,omitempty"`
	RequestObjectJWEAlgs []Alg `json:"request_object_encryption_alg_values_supported,omitempty"`
	RequestObjectJWEEncs []Alg `json:"request_object_encryption_enc_values_supported,omitempty"`

	AuthorizationJWSAlgs []Alg `json:"authorization_signing_alg_values_supported,omitempty"`
	AuthorizationJWEAlgs []Alg `json:"authorization_encryption_alg_values_supported,omitempty"`
	AuthorizationJWEEncs []Alg `json:"authorization_encryption_enc_values_supported,omitempty"`

	BackChannelAuthJWSAlgs    []Alg `json:"backchannel_authentication_request_signing_alg_values_supported,omitempty"`
	ClientRegistrationJWSAlgs []Alg `json:"client_registration_authn_signing_alg_values_supported,omitempty"`
	DPoPJWSAlgs               []Alg `json:"dpop_signing_alg_values_supported,omitempty"`
}

// SupportsGrantType reports whether the provider advertises the grant.
// An absent grant_types list is treated as not supporting the grant.
func (md *ProviderMetadata) SupportsGrantType(grant string) bool {
	if md == nil {
		return false
	}
	for _, g := range md.GrantTypesSupported {
		if g == grant {
			return true
		}
	}
	return false
}
