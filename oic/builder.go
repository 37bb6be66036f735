package oic

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// metadataCacheTTL bounds how long a resolved discovery document is
// reused before it is fetched again.
const metadataCacheTTL = time.Hour

// metadataCache memoizes the provider metadata so the refresh filter
// does not hit the discovery endpoint on every request.
type metadataCache struct {
	mu        sync.Mutex
	md        *ProviderMetadata
	fetchedAt time.Time
}

// providerMetadata resolves the provider metadata through the server
// configuration, applying the compliance filter, with caching.
func (r *Realm) providerMetadata(ctx context.Context) (*ProviderMetadata, error) {
	const op = "Realm.providerMetadata"
	r.mdCache.mu.Lock()
	defer r.mdCache.mu.Unlock()
	if r.mdCache.md != nil && r.clock().Sub(r.mdCache.fetchedAt) < metadataCacheTTL {
		return r.mdCache.md, nil
	}
	md, err := r.cfg.Server.ToProviderMetadata(ctx, r.rr)
	if err != nil {
		if r.mdCache.md != nil {
			// keep serving the stale copy while the provider is down
			r.logger.Warn("unable to refresh provider metadata, reusing cached copy", "error", err)
			return r.mdCache.md, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	FilterNonCompliantAlgs(md, r.cfg.RestrictedCryptography)
	r.mdCache.md = md
	r.mdCache.fetchedAt = r.clock()
	return md, nil
}

// defaultScopes are requested when neither the server configuration
// nor the discovery document names any.
var defaultScopes = []string{"openid", "email"}

// BuildClientConfig resolves the provider metadata and combines it
// with the realm configuration into a ready client configuration.
// callbackURL is the absolute redirect_uri for this deployment.
func (r *Realm) BuildClientConfig(ctx context.Context, callbackURL string) (*ClientConfig, error) {
	const op = "Realm.BuildClientConfig"
	if callbackURL == "" {
		return nil, fmt.Errorf("%s: callback url is empty: %w", op, ErrInvalidParameter)
	}
	md, err := r.providerMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	scopes := md.ScopesSupported
	if len(scopes) == 0 {
		scopes = defaultScopes
	}

	var validator TokenValidator
	switch {
	case r.cfg.DisableTokenVerification:
		validator = NewPermissiveValidator(r.logger)
	default:
		if md.JWKSURI == "" {
			return nil, fmt.Errorf("%s: token verification requires a jwks uri: %w", op, ErrConfigIncompatible)
		}
		algs := md.IDTokenJWSAlgs
		if len(algs) == 0 {
			algs = []Alg{RS256}
		}
		validator, err = NewVerifyingValidator(ctx, md.Issuer, md.JWKSURI, r.cfg.ClientID, algs, r.clock, r.rr.Client())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	authMethod := ClientSecretBasic
	if manual, ok := r.cfg.Server.(*ManualConfiguration); ok && manual.TokenAuthMethod != "" {
		authMethod = manual.TokenAuthMethod
	}

	return &ClientConfig{
		ClientID:                 r.cfg.ClientID,
		ClientSecret:             r.cfg.ClientSecret,
		Issuer:                   md.Issuer,
		AuthorizationEndpoint:    md.AuthorizationEndpoint,
		TokenEndpoint:            md.TokenEndpoint,
		UserInfoEndpoint:         md.UserInfoEndpoint,
		JWKSURI:                  md.JWKSURI,
		EndSessionEndpoint:       md.EndSessionEndpoint,
		CallbackURL:              callbackURL,
		Scopes:                   scopes,
		TokenAuthMethod:          authMethod,
		UseNonce:                 !r.cfg.NonceDisabled,
		UsePKCE:                  r.cfg.PKCEEnabled,
		CheckNonceInRefreshFlow:  r.cfg.CheckNonceInRefreshFlow,
		SendScopesInTokenRequest: r.cfg.SendScopesInTokenRequest,
		LoginQueryParameters:     r.cfg.LoginQueryParameters,
		Validator:                validator,
		HTTPClient:               r.rr.Client(),
		Logger:                   r.logger,
		Clock:                    r.clock,
	}, nil
}

// buildClient builds the protocol client for one flow invocation.
func (r *Realm) buildClient(ctx context.Context, callbackURL string) (Client, error) {
	const op = "Realm.buildClient"
	cc, err := r.BuildClientConfig(ctx, callbackURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r.clientFactory(cc), nil
}
