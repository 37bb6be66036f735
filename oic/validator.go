package oic

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TokenValidator checks a raw id token and returns its claims.
// expectedNonce of "" disables the nonce comparison entirely, both
// when nonces are switched off and during refresh responses.
type TokenValidator interface {
	Validate(ctx context.Context, rawIDToken string, expectedNonce string) (map[string]interface{}, error)
}

// VerifyingValidator verifies signature, issuer, audience and expiry
// against the provider's published keys.
type VerifyingValidator struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifyingValidator builds a validator backed by the provider's
// remote key set. Key fetches go through httpClient, happen lazily on
// first use and are cached per kid; ctx bounds those fetches for the
// validator's whole lifetime. The signing algorithm list must already
// be filtered for compliance when restricted cryptography is in
// effect.
func NewVerifyingValidator(ctx context.Context, issuer, jwksURI, clientID string, algs []Alg, clock Clock, httpClient *http.Client) (*VerifyingValidator, error) {
	const op = "NewVerifyingValidator"
	switch {
	case issuer == "":
		return nil, fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter)
	case jwksURI == "":
		return nil, fmt.Errorf("%s: jwks uri is empty: %w", op, ErrInvalidParameter)
	case clientID == "":
		return nil, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}
	supported := make([]string, 0, len(algs))
	for _, a := range algs {
		supported = append(supported, string(a))
	}
	cfg := &oidc.Config{
		ClientID:             clientID,
		SupportedSigningAlgs: supported,
	}
	if clock != nil {
		cfg.Now = clock
	}
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}
	keySet := oidc.NewRemoteKeySet(ctx, jwksURI)
	return &VerifyingValidator{
		verifier: oidc.NewVerifier(issuer, keySet, cfg),
	}, nil
}

// Validate implements TokenValidator.
func (v *VerifyingValidator) Validate(ctx context.Context, rawIDToken string, expectedNonce string) (map[string]interface{}, error) {
	const op = "VerifyingValidator.Validate"
	token, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err.Error(), ErrProtocolFlow)
	}
	if expectedNonce != "" && token.Nonce != expectedNonce {
		return nil, fmt.Errorf("%s: nonce does not match: %w", op, ErrProtocolFlow)
	}
	var claims map[string]interface{}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to decode claims: %w", op, err)
	}
	return claims, nil
}

// PermissiveValidator accepts any token without checking its
// signature, issuer, audience, expiry or nonce. Only selectable when
// token verification is explicitly disabled, and never in
// restricted-cryptography mode.
type PermissiveValidator struct {
	logger hclog.Logger
}

// NewPermissiveValidator builds the validator used when verification
// is disabled.
func NewPermissiveValidator(logger hclog.Logger) *PermissiveValidator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &PermissiveValidator{logger: logger}
}

// Validate implements TokenValidator. A token that cannot even be
// parsed yields an empty claim set rather than an error, so the flow
// proceeds with whatever identity fields remain resolvable.
func (v *PermissiveValidator) Validate(_ context.Context, rawIDToken string, _ string) (map[string]interface{}, error) {
	parsed, err := jwt.ParseSigned(rawIDToken)
	if err != nil {
		v.logger.Warn("token verification is disabled and the id token could not be parsed", "error", err)
		return map[string]interface{}{}, nil
	}
	var claims map[string]interface{}
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		v.logger.Warn("token verification is disabled and the id token claims could not be decoded", "error", err)
		return map[string]interface{}{}, nil
	}
	if claims == nil {
		claims = map[string]interface{}{}
	}
	return claims, nil
}
