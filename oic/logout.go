package oic

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Logout tears down the local session, clears the stored provider
// credentials and reports where to send the browser: the provider's
// end-session endpoint when remote logout applies, otherwise the post
// logout page. Clearing keeps the credentials record with its tokens
// removed, so later requests see a logged-out user rather than a
// stale session.
func (r *Realm) Logout(ctx context.Context, req *http.Request, sess Session) (string, error) {
	username := r.store.CurrentUsername(req)

	endSession := ""
	if r.cfg.LogoutFromProvider {
		if md, err := r.providerMetadata(ctx); err == nil {
			endSession = md.EndSessionEndpoint
		} else {
			r.logger.Warn("unable to resolve provider metadata for logout", "error", err)
		}
	}

	var idToken IdToken
	if username != "" {
		if creds := r.store.Credentials(username); creds != nil {
			idToken = creds.IdToken
			if endSession != "" {
				r.store.SetCredentials(username, creds.Cleared(r.clock()))
			}
		}
		r.logger.Info("logout", "user", username)
	}
	if sess != nil {
		sess.Destroy()
	}

	post := r.postLogoutURL(req)
	if endSession == "" {
		return post, nil
	}
	state := ""
	if req != nil {
		state = req.URL.Query().Get("state")
	}
	return EndSessionURL(endSession, string(idToken), state, post, r.cfg.LogoutQueryParameters), nil
}

// postLogoutURL is where the browser lands once logout completes.
func (r *Realm) postLogoutURL(req *http.Request) string {
	if r.cfg.PostLogoutRedirectURL != "" {
		return r.cfg.PostLogoutRedirectURL
	}
	return r.rootURL(req) + LoggedOutPath
}

// EndSessionURL assembles the provider logout request. Segments keep
// a fixed order: id_token_hint, state, post_logout_redirect_uri, then
// the configured extra parameters. The token and state ride along
// verbatim while the redirect target and extra parameters are
// percent-encoded; an extra parameter with an empty value becomes a
// bare flag. An endpoint that already carries a query string is
// extended rather than restarted.
func EndSessionURL(endpoint, idToken, state, postLogoutRedirectURL string, extra []QueryParameter) string {
	var b strings.Builder
	b.WriteString(endpoint)
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	add := func(segment string) {
		b.WriteString(sep)
		b.WriteString(segment)
		sep = "&"
	}
	if idToken != "" {
		add("id_token_hint=" + idToken)
	}
	if state != "" && state != "null" {
		add("state=" + state)
	}
	if postLogoutRedirectURL != "" {
		add("post_logout_redirect_uri=" + url.QueryEscape(postLogoutRedirectURL))
	}
	for _, p := range extra {
		if p.Key == "" {
			continue
		}
		if p.Value == "" {
			add(url.QueryEscape(p.Key))
			continue
		}
		add(url.QueryEscape(p.Key) + "=" + url.QueryEscape(p.Value))
	}
	return b.String()
}
