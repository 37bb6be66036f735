package oic

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-uuid"
	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is an in-process provider for tests. It serves
// discovery, authorization, token, userinfo, keys and logout endpoints
// over TLS, signs id tokens with a fresh ES256 key, and exposes knobs
// for the failure modes the flows have to handle. All knobs are safe
// to flip between requests.
type TestProvider struct {
	t          *testing.T
	httpServer *httptest.Server

	privKey *ecdsa.PrivateKey
	keyID   string
	signer  jose.Signer

	mu                   sync.Mutex
	clientID             string
	clientSecret         string
	expectedAuthCode     string
	capturedNonce        string
	subject              string
	expiresIn            int
	customClaims         map[string]interface{}
	userInfoReply        map[string]interface{}
	refreshClaims        map[string]interface{}
	disableUserInfo      bool
	failRefresh          bool
	omitIDTokenOnRefresh bool
	omitRefreshToken     bool
}

// StartTestProvider starts the provider on a TLS test server and
// registers its shutdown with the test's cleanup.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("unable to generate test signing key: %v", err)
	}
	keyID, err := uuid.GenerateUUID()
	if err != nil {
		t.Fatalf("unable to generate key id: %v", err)
	}
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: priv},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", keyID),
	)
	if err != nil {
		t.Fatalf("unable to build test signer: %v", err)
	}
	p := &TestProvider{
		t:                t,
		privKey:          priv,
		keyID:            keyID,
		signer:           signer,
		clientID:         "test-client-id",
		clientSecret:     "test-client-secret",
		expectedAuthCode: "test-auth-code",
		subject:          "alice",
		expiresIn:        3600,
	}
	p.httpServer = httptest.NewTLSServer(p)
	t.Cleanup(p.httpServer.Close)
	return p
}

// Addr is the provider's issuer URL.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// SetClientCreds sets the client id and secret the token endpoint
// accepts.
func (p *TestProvider) SetClientCreds(id, secret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID, p.clientSecret = id, secret
}

// SetExpectedAuthCode sets the code the authorization endpoint hands
// out and the token endpoint accepts.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetSubject sets the sub claim of issued id tokens.
func (p *TestProvider) SetSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subject = sub
}

// SetExpiresIn sets the access token lifetime in seconds.
func (p *TestProvider) SetExpiresIn(seconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expiresIn = seconds
}

// SetCustomClaims merges extra claims into every issued id token.
func (p *TestProvider) SetCustomClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = claims
}

// SetUserInfoReply sets the userinfo document. A nil reply serves a
// minimal document with the current subject.
func (p *TestProvider) SetUserInfoReply(doc map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfoReply = doc
}

// SetDisableUserInfo removes the userinfo endpoint from discovery.
func (p *TestProvider) SetDisableUserInfo(disable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = disable
}

// SetFailRefresh makes the refresh grant fail with invalid_grant.
func (p *TestProvider) SetFailRefresh(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failRefresh = fail
}

// SetRefreshClaims merges extra claims into id tokens issued on
// refresh only, so a refresh can change the subject.
func (p *TestProvider) SetRefreshClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshClaims = claims
}

// SetOmitIDTokenOnRefresh drops the id token from refresh responses.
func (p *TestProvider) SetOmitIDTokenOnRefresh(omit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDTokenOnRefresh = omit
}

// SetOmitRefreshToken drops the refresh token from token responses.
func (p *TestProvider) SetOmitRefreshToken(omit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitRefreshToken = omit
}

// SignIDToken signs arbitrary claims with the provider's key.
func (p *TestProvider) SignIDToken(claims map[string]interface{}) string {
	p.t.Helper()
	raw, err := jwt.Signed(p.signer).Claims(claims).CompactSerialize()
	if err != nil {
		p.t.Fatalf("unable to sign test token: %v", err)
	}
	return raw
}

// DefaultIDClaims are the standard claims of the next issued id token,
// handy as a base for SignIDToken.
func (p *TestProvider) DefaultIDClaims() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	return map[string]interface{}{
		"iss": p.httpServer.URL,
		"sub": p.subject,
		"aud": p.clientID,
		"iat": now.Unix(),
		"exp": now.Add(time.Duration(p.expiresIn) * time.Second).Unix(),
	}
}

// ServeHTTP implements the provider's endpoints.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/.well-known/openid-configuration":
		p.serveDiscovery(w)
	case "/auth":
		p.serveAuth(w, r)
	case "/token":
		p.serveToken(w, r)
	case "/userinfo":
		p.serveUserInfo(w, r)
	case "/certs":
		p.serveKeys(w)
	case "/logout":
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, doc interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(doc)
}

func (p *TestProvider) serveDiscovery(w http.ResponseWriter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	base := p.httpServer.URL
	doc := map[string]interface{}{
		"issuer":                                base,
		"authorization_endpoint":                base + "/auth",
		"token_endpoint":                        base + "/token",
		"jwks_uri":                              base + "/certs",
		"end_session_endpoint":                  base + "/logout",
		"scopes_supported":                      []string{"openid", "email", "profile", "groups"},
		"grant_types_supported":                 []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken},
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"ES256"},
	}
	if !p.disableUserInfo {
		doc["userinfo_endpoint"] = base + "/userinfo"
	}
	writeJSON(w, http.StatusOK, doc)
}

func (p *TestProvider) serveAuth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" {
		http.Error(w, "redirect_uri is required", http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.capturedNonce = q.Get("nonce")
	code := p.expectedAuthCode
	p.mu.Unlock()

	sep := "?"
	if u, err := url.Parse(redirectURI); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	loc := fmt.Sprintf("%s%scode=%s&state=%s", redirectURI, sep,
		url.QueryEscape(code), url.QueryEscape(q.Get("state")))
	http.Redirect(w, r, loc, http.StatusFound)
}

func (p *TestProvider) clientAuthOK(r *http.Request) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, secret, ok := r.BasicAuth(); ok {
		return id == p.clientID && secret == p.clientSecret
	}
	return r.PostFormValue("client_id") == p.clientID &&
		r.PostFormValue("client_secret") == p.clientSecret
}

func (p *TestProvider) serveToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if !p.clientAuthOK(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	switch r.PostFormValue("grant_type") {
	case GrantTypeAuthorizationCode:
		p.mu.Lock()
		codeOK := r.PostFormValue("code") == p.expectedAuthCode
		p.mu.Unlock()
		if !codeOK {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_grant"})
			return
		}
		p.writeTokenResponse(w, false)
	case GrantTypeRefreshToken:
		p.mu.Lock()
		fail := p.failRefresh
		p.mu.Unlock()
		if fail {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":             "invalid_grant",
				"error_description": "refresh token is no longer valid",
			})
			return
		}
		p.writeTokenResponse(w, true)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (p *TestProvider) writeTokenResponse(w http.ResponseWriter, refresh bool) {
	p.mu.Lock()
	now := time.Now()
	claims := map[string]interface{}{
		"iss":   p.httpServer.URL,
		"sub":   p.subject,
		"aud":   p.clientID,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Duration(p.expiresIn) * time.Second).Unix(),
		"nonce": p.capturedNonce,
	}
	for k, v := range p.customClaims {
		claims[k] = v
	}
	if refresh {
		for k, v := range p.refreshClaims {
			claims[k] = v
		}
	}
	omitID := refresh && p.omitIDTokenOnRefresh
	omitRefresh := p.omitRefreshToken
	expiresIn := p.expiresIn
	p.mu.Unlock()

	accessToken, err := uuid.GenerateUUID()
	if err != nil {
		p.t.Errorf("unable to generate access token: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	resp := map[string]interface{}{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	}
	if !omitID {
		resp["id_token"] = p.SignIDToken(claims)
	}
	if !omitRefresh {
		refreshToken, err := uuid.GenerateUUID()
		if err != nil {
			p.t.Errorf("unable to generate refresh token: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
			return
		}
		resp["refresh_token"] = refreshToken
	}
	writeJSON(w, http.StatusOK, resp)
}

func (p *TestProvider) serveUserInfo(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}
	p.mu.Lock()
	doc := p.userInfoReply
	sub := p.subject
	p.mu.Unlock()
	if doc == nil {
		doc = map[string]interface{}{"sub": sub}
	}
	writeJSON(w, http.StatusOK, doc)
}

func (p *TestProvider) serveKeys(w http.ResponseWriter) {
	set := jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       &p.privKey.PublicKey,
			KeyID:     p.keyID,
			Algorithm: "ES256",
			Use:       "sig",
		}},
	}
	writeJSON(w, http.StatusOK, set)
}
