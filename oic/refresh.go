package oic

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"gopkg.in/square/go-jose.v2/jwt"
)

// HandleTokenExpiration enforces provider-session expiry on an
// authenticated request. A nil action means the request may proceed,
// possibly after a transparent refresh. A non-nil action is the
// response to serve instead: a redirect back through login, or a 401
// when the provider no longer recognizes the user.
func (r *Realm) HandleTokenExpiration(ctx context.Context, req *http.Request) *HTTPAction {
	if req == nil {
		return nil
	}
	// logout must stay reachable with an expired token
	if strings.HasSuffix(req.URL.Path, LogoutPath) || strings.HasSuffix(req.URL.Path, LoggedOutPath) {
		return nil
	}
	username := r.store.CurrentUsername(req)
	if username == "" {
		return nil
	}
	if r.cfg.AllowTokenAccessWithoutSession && r.isValidAPITokenRequest(req) {
		return nil
	}
	creds := r.store.Credentials(username)
	if creds == nil {
		return nil
	}
	if !creds.Expired(r.clock()) {
		return nil
	}
	if r.canRefresh(ctx, creds) {
		return r.refreshExpiredToken(ctx, username, creds, req)
	}
	if r.cfg.TokenExpirationCheckDisabled {
		return nil
	}
	r.logger.Info("provider session expired and cannot be refreshed, forcing a new login", "user", username)
	r.store.SetCredentials(username, creds.Cleared(r.clock()))
	return r.redirectToLogin(req)
}

// isValidAPITokenRequest reports whether the request authenticates
// with a basic-auth API token, which is not tied to a provider
// session.
func (r *Realm) isValidAPITokenRequest(req *http.Request) bool {
	auth := req.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}
	user, token, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}
	return r.store.APITokenMatches(user, token)
}

// canRefresh reports whether a transparent refresh is possible: a
// refresh token was stored and the provider advertises the grant. The
// manual server configuration folds its refresh opt-in into the
// advertised grant types.
func (r *Realm) canRefresh(ctx context.Context, creds *Credentials) bool {
	if creds.RefreshToken == "" {
		return false
	}
	md, err := r.providerMetadata(ctx)
	if err != nil {
		r.logger.Warn("unable to resolve provider metadata for refresh", "error", err)
		return false
	}
	return md.SupportsGrantType(GrantTypeRefreshToken)
}

// redirectToLogin bounces the browser through a fresh login, carrying
// the original request target.
func (r *Realm) redirectToLogin(req *http.Request) *HTTPAction {
	login := r.rootURL(req) + LoginPath
	if req.URL.RequestURI() != "" && req.URL.Path != LoginPath {
		login += "?from=" + url.QueryEscape(req.URL.RequestURI())
	}
	return &HTTPAction{Code: http.StatusFound, Location: login}
}

// refreshExpiredToken runs the refresh grant and re-binds the
// refreshed identity. The stored user name keeps its original casing
// even when the provider returns a differently cased subject, as long
// as the identity-equality rule still considers them the same user.
func (r *Realm) refreshExpiredToken(ctx context.Context, username string, creds *Credentials, req *http.Request) *HTTPAction {
	client, err := r.buildClient(ctx, r.callbackURL(req))
	if err != nil {
		r.logger.Error("unable to build client for token refresh", "error", err)
		return &HTTPAction{Code: http.StatusUnauthorized}
	}
	previous := &Profile{
		Claims:       unverifiedClaims(creds.IdToken),
		IdToken:      creds.IdToken,
		RefreshToken: creds.RefreshToken,
	}
	profile, err := client.RenewProfile(ctx, previous)
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			if r.cfg.TokenExpirationCheckDisabled {
				r.logger.Warn("refresh token was not accepted but expiration enforcement is disabled, continuing with the stale session", "user", username)
				return nil
			}
			r.logger.Info("refresh token was not accepted, forcing a new login", "user", username)
			r.store.SetCredentials(username, creds.Cleared(r.clock()))
			return r.redirectToLogin(req)
		}
		r.logger.Warn("token refresh failed", "user", username, "error", err)
		return &HTTPAction{Code: http.StatusUnauthorized}
	}
	if profile == nil {
		r.logger.Warn("token refresh returned no profile", "user", username)
		return &HTTPAction{Code: http.StatusUnauthorized}
	}

	identity := r.extractIdentity(profile)
	if !r.idStrategy.Equals(identity.Username, username) {
		r.logger.Warn("user name was not the same after refresh request", "was", username, "now", identity.Username)
		return &HTTPAction{Code: http.StatusUnauthorized}
	}
	if err := r.checkTokenField(profile.Claims); err != nil {
		r.logger.Warn("refreshed token failed the field check", "user", username, "error", err)
		return &HTTPAction{Code: http.StatusUnauthorized}
	}

	identity.Username = username
	stored := NewCredentials(
		profile.AccessToken,
		profile.IdToken,
		profile.RefreshToken,
		profile.AccessTokenLifetime,
		r.clock(),
		r.cfg.AllowedClockSkew(),
	)
	r.setUserData(identity, stored)
	r.logger.Debug("provider session refreshed", "user", username)
	return nil
}

// unverifiedClaims parses claims out of a previously validated token,
// so refresh responses that omit the id token can carry them over.
func unverifiedClaims(raw IdToken) map[string]interface{} {
	if raw == "" {
		return map[string]interface{}{}
	}
	parsed, err := jwt.ParseSigned(string(raw))
	if err != nil {
		return map[string]interface{}{}
	}
	var claims map[string]interface{}
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil || claims == nil {
		return map[string]interface{}{}
	}
	return claims
}
