package oic

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Paths the realm's flows occupy under the application root. The http
// surface mounts its handlers on the same paths.
const (
	LoginPath     = "/login"
	CallbackPath  = "/login/callback"
	LogoutPath    = "/logout"
	LoggedOutPath = "/logged-out"
)

// rootURL is the application root every post-login redirect must
// resolve under, without a trailing slash.
func (r *Realm) rootURL(req *http.Request) string {
	if r.cfg.RootURLFromRequest && req != nil {
		scheme := "http"
		if req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		host := req.Host
		if fwd := req.Header.Get("X-Forwarded-Host"); fwd != "" {
			host = fwd
		}
		return scheme + "://" + host
	}
	return strings.TrimSuffix(r.cfg.RootURL, "/")
}

func (r *Realm) callbackURL(req *http.Request) string {
	return r.rootURL(req) + CallbackPath
}

// validRedirectURL resolves target against the application root and
// rejects anything that escapes it. A target pointing back at the
// logout endpoint falls back to the root so a login never bounces
// straight into a logout.
func (r *Realm) validRedirectURL(target string, req *http.Request) string {
	root := r.rootURL(req)
	if target == "" {
		return root
	}
	rootParsed, err := url.Parse(root + "/")
	if err != nil {
		return root
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return root
	}
	resolved := rootParsed.ResolveReference(parsed)
	if resolved.Scheme != rootParsed.Scheme || resolved.Host != rootParsed.Host {
		return root
	}
	if !strings.HasPrefix(resolved.Path, rootParsed.Path) && resolved.Path+"/" != rootParsed.Path {
		return root
	}
	if resolved.Path == strings.TrimSuffix(rootParsed.Path, "/")+LogoutPath {
		return root
	}
	return resolved.String()
}

// CommenceLogin starts the authorization code flow. from names the
// page to return to after login; when empty the request's referer is
// used, and anything outside the application root collapses to the
// root. The returned URL is the provider's authorization request to
// redirect the browser to.
func (r *Realm) CommenceLogin(ctx context.Context, req *http.Request, from string, sess Session) (string, error) {
	const op = "Realm.CommenceLogin"
	if sess == nil {
		return "", fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	target := from
	if target == "" && req != nil {
		target = req.Referer()
	}
	sess.Set(SessionKeyRedirectOnLogin, r.validRedirectURL(target, req))

	client, err := r.buildClient(ctx, r.callbackURL(req))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	redirect, err := client.RedirectionURL(ctx, sess)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	r.logger.Debug("commencing login", "target", sess.Get(SessionKeyRedirectOnLogin))
	return redirect, nil
}

// LoginResult is a completed callback: who logged in, and where to
// send the browser.
type LoginResult struct {
	Identity *ExtractedIdentity
	Redirect string
}

// FinishLogin handles the provider's callback: it validates the
// response, extracts and persists the identity and reports where to
// redirect the browser. The session id is rotated before the identity
// is bound so a pre-login session id cannot be replayed.
func (r *Realm) FinishLogin(ctx context.Context, req *http.Request, sess Session) (*LoginResult, error) {
	const op = "Realm.FinishLogin"
	if req == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if sess == nil {
		return nil, fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	sess.Renew()

	client, err := r.buildClient(ctx, r.callbackURL(req))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	creds, err := client.ExtractCredentials(req, sess)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrLoginFailed, err)
	}
	tr, err := client.ValidateCredentials(ctx, creds, sess)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrLoginFailed, err)
	}
	profile, err := client.CreateProfile(ctx, tr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrLoginFailed, err)
	}
	if profile == nil {
		return nil, fmt.Errorf("%s: no profile was built for the token response: %w", op, ErrLoginFailed)
	}

	identity := r.extractIdentity(profile)
	if identity.Username == "" {
		return nil, fmt.Errorf("%s: no field %q was supplied in the token payload to be used as the user name: %w",
			op, r.cfg.UserNameField, ErrLoginFailed)
	}
	if err := r.checkTokenField(profile.Claims); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := r.clock()
	stored := NewCredentials(
		profile.AccessToken,
		profile.IdToken,
		profile.RefreshToken,
		profile.AccessTokenLifetime,
		now,
		r.cfg.AllowedClockSkew(),
	)
	r.setUserData(identity, stored)

	target := sess.Get(SessionKeyRedirectOnLogin)
	sess.Delete(SessionKeyRedirectOnLogin)
	r.logger.Info("login complete", "user", identity.Username)
	return &LoginResult{
		Identity: identity,
		Redirect: r.validRedirectURL(target, req),
	}, nil
}

// extractIdentity resolves the configured identity fields over the
// profile, the userinfo document winning over the id token claims.
func (r *Realm) extractIdentity(p *Profile) *ExtractedIdentity {
	identity := &ExtractedIdentity{
		Username:  resolveStringField(r.userNamePath, p.Claims, p.UserInfo),
		Email:     resolveStringField(r.emailPath, p.Claims, p.UserInfo),
		FullName:  resolveStringField(r.fullNamePath, p.Claims, p.UserInfo),
		AvatarURL: resolveStringField(r.avatarPath, p.Claims, p.UserInfo),
	}
	groups := extractGroups(r.groupsPath, r.cfg.NestedGroupField, p.Claims, p.UserInfo, r.logger)
	identity.Authorities = append([]string{AuthenticatedAuthority}, groups...)
	return identity
}

// checkTokenField enforces the optional claim gate over the id token
// claims. Passing the gate requires an exact string match.
func (r *Realm) checkTokenField(claims map[string]interface{}) error {
	const op = "Realm.checkTokenField"
	if r.tokenCheckPath == nil || r.cfg.TokenFieldToCheckValue == "" {
		return nil
	}
	got := resolveStringField(r.tokenCheckPath, claims, nil)
	if got != r.cfg.TokenFieldToCheckValue {
		return fmt.Errorf("%s: field %q did not carry the required value: %w",
			op, r.cfg.TokenFieldToCheckKey, ErrTokenFieldCheck)
	}
	return nil
}

// setUserData persists the identity and credentials and notifies the
// listener.
func (r *Realm) setUserData(identity *ExtractedIdentity, creds *Credentials) {
	username := identity.Username
	if identity.Email != "" {
		r.store.SetProperty(username, PropertyEmail, identity.Email)
	}
	if identity.FullName != "" {
		r.store.SetProperty(username, PropertyFullName, identity.FullName)
	}
	if identity.AvatarURL != "" {
		r.store.SetProperty(username, PropertyAvatarURL, identity.AvatarURL)
	}
	r.store.SetAuthorities(username, identity.Authorities)
	r.store.SetCredentials(username, creds)
	r.listener.Authenticated(identity)
	r.listener.LoggedIn(username)
}
