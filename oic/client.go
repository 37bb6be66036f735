package oic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-uuid"
	"golang.org/x/oauth2"
)

// ClientConfig is the fully resolved configuration for one protocol
// client, produced by BuildClientConfig from the realm configuration
// and the provider's metadata.
type ClientConfig struct {
	ClientID     string
	ClientSecret ClientSecret

	Issuer                string
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserInfoEndpoint      string
	JWKSURI               string
	EndSessionEndpoint    string

	// CallbackURL is the absolute redirect_uri registered with the
	// provider.
	CallbackURL string

	Scopes          []string
	TokenAuthMethod TokenAuthMethod

	UseNonce                bool
	UsePKCE                 bool
	CheckNonceInRefreshFlow bool

	// SendScopesInTokenRequest repeats the scope parameter on the code
	// exchange for providers that require it.
	SendScopesInTokenRequest bool

	// LoginQueryParameters are appended to the authorization request.
	LoginQueryParameters []QueryParameter

	Validator TokenValidator

	HTTPClient *http.Client
	Logger     hclog.Logger
	Clock      Clock
}

// CallbackCredentials is what the provider handed back on the
// authorization callback after the state comparison passed.
type CallbackCredentials struct {
	Code  string
	State string
}

// TokenResponse is the validated outcome of a code exchange or
// refresh grant.
type TokenResponse struct {
	AccessToken  AccessToken
	IdToken      IdToken
	RefreshToken RefreshToken

	// AccessTokenLifetime is zero when the provider reported none.
	AccessTokenLifetime time.Duration

	// Claims are the validated id token claims.
	Claims map[string]interface{}
}

// Profile is the provider's view of the authenticated user: the
// validated id token claims, the userinfo document when an endpoint is
// configured, and the tokens to persist.
type Profile struct {
	Claims   map[string]interface{}
	UserInfo map[string]interface{}

	AccessToken         AccessToken
	AccessTokenLifetime time.Duration
	IdToken             IdToken
	RefreshToken        RefreshToken
}

// Client is the protocol collaborator the flows drive. Implementations
// must be safe for concurrent use once constructed.
type Client interface {
	// RedirectionURL builds the authorization request and stores the
	// state, nonce and PKCE verifier in the session.
	RedirectionURL(ctx context.Context, sess Session) (string, error)

	// ExtractCredentials pulls the code off the callback request after
	// checking the provider error response and the state round trip.
	ExtractCredentials(r *http.Request, sess Session) (*CallbackCredentials, error)

	// ValidateCredentials exchanges the code for tokens and validates
	// the id token, consuming the session's nonce and verifier.
	ValidateCredentials(ctx context.Context, creds *CallbackCredentials, sess Session) (*TokenResponse, error)

	// CreateProfile resolves the userinfo document for the token
	// response when an endpoint is configured.
	CreateProfile(ctx context.Context, tr *TokenResponse) (*Profile, error)

	// RenewProfile runs the refresh grant. Token response fields the
	// provider omits are carried over from the previous profile.
	RenewProfile(ctx context.Context, previous *Profile) (*Profile, error)

	// EndSessionEndpoint reports the provider's logout endpoint, or "".
	EndSessionEndpoint() string
}

// ClientFactory builds a Client from a resolved configuration.
type ClientFactory func(*ClientConfig) Client

// OIDCClient is the default Client on the authorization code flow with
// optional PKCE.
type OIDCClient struct {
	cfg    *ClientConfig
	oauth2 *oauth2.Config
	logger hclog.Logger
	clock  Clock
}

// NewOIDCClient is the default ClientFactory.
func NewOIDCClient(cfg *ClientConfig) Client {
	authStyle := oauth2.AuthStyleInHeader
	if cfg.TokenAuthMethod == ClientSecretPost {
		authStyle = oauth2.AuthStyleInParams
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &OIDCClient{
		cfg: cfg,
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: string(cfg.ClientSecret),
			RedirectURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizationEndpoint,
				TokenURL:  cfg.TokenEndpoint,
				AuthStyle: authStyle,
			},
		},
		logger: logger,
		clock:  clock,
	}
}

// httpContext threads the configured http client through the oauth2
// package.
func (c *OIDCClient) httpContext(ctx context.Context) context.Context {
	if c.cfg.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.cfg.HTTPClient)
}

// RedirectionURL implements Client.
func (c *OIDCClient) RedirectionURL(_ context.Context, sess Session) (string, error) {
	const op = "OIDCClient.RedirectionURL"
	state, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate state: %w", op, err)
	}
	sess.Set(SessionKeyState, state)

	var authOpts []oauth2.AuthCodeOption
	if c.cfg.UseNonce {
		nonce, err := uuid.GenerateUUID()
		if err != nil {
			return "", fmt.Errorf("%s: unable to generate nonce: %w", op, err)
		}
		sess.Set(SessionKeyNonce, nonce)
		authOpts = append(authOpts, oauth2.SetAuthURLParam("nonce", nonce))
	}
	if c.cfg.UsePKCE {
		verifier := oauth2.GenerateVerifier()
		sess.Set(SessionKeyPKCEVerifier, verifier)
		authOpts = append(authOpts, oauth2.S256ChallengeOption(verifier))
	}
	for _, p := range c.cfg.LoginQueryParameters {
		authOpts = append(authOpts, oauth2.SetAuthURLParam(p.Key, p.Value))
	}
	return c.oauth2.AuthCodeURL(state, authOpts...), nil
}

// ExtractCredentials implements Client.
func (c *OIDCClient) ExtractCredentials(r *http.Request, sess Session) (*CallbackCredentials, error) {
	const op = "OIDCClient.ExtractCredentials"
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		desc := q.Get("error_description")
		if desc != "" {
			return nil, fmt.Errorf("%s: provider returned %q (%s): %w", op, errCode, desc, ErrProtocolFlow)
		}
		return nil, fmt.Errorf("%s: provider returned %q: %w", op, errCode, ErrProtocolFlow)
	}
	state := q.Get("state")
	expected := sess.Get(SessionKeyState)
	if expected == "" || state != expected {
		return nil, fmt.Errorf("%s: state does not match the login request: %w", op, ErrProtocolFlow)
	}
	code := q.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%s: no authorization code in callback: %w", op, ErrMissingCredentials)
	}
	return &CallbackCredentials{Code: code, State: state}, nil
}

// ValidateCredentials implements Client.
func (c *OIDCClient) ValidateCredentials(ctx context.Context, creds *CallbackCredentials, sess Session) (*TokenResponse, error) {
	const op = "OIDCClient.ValidateCredentials"
	if creds == nil {
		return nil, fmt.Errorf("%s: callback credentials are nil: %w", op, ErrNilParameter)
	}
	var exchangeOpts []oauth2.AuthCodeOption
	if c.cfg.UsePKCE {
		exchangeOpts = append(exchangeOpts, oauth2.VerifierOption(sess.Get(SessionKeyPKCEVerifier)))
	}
	if c.cfg.SendScopesInTokenRequest && len(c.cfg.Scopes) > 0 {
		exchangeOpts = append(exchangeOpts, oauth2.SetAuthURLParam("scope", strings.Join(c.cfg.Scopes, " ")))
	}
	tok, err := c.oauth2.Exchange(c.httpContext(ctx), creds.Code, exchangeOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: code exchange failed: %w", op, err)
	}

	expectedNonce := ""
	if c.cfg.UseNonce {
		expectedNonce = sess.Get(SessionKeyNonce)
		if expectedNonce == "" {
			return nil, fmt.Errorf("%s: no nonce in session for the login request: %w", op, ErrProtocolFlow)
		}
	}
	tr, err := c.tokenResponse(ctx, tok, expectedNonce)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sess.Delete(SessionKeyState)
	sess.Delete(SessionKeyNonce)
	sess.Delete(SessionKeyPKCEVerifier)
	return tr, nil
}

// tokenResponse validates the id token carried by tok and normalizes
// the provider's expiry reporting into a lifetime.
func (c *OIDCClient) tokenResponse(ctx context.Context, tok *oauth2.Token, expectedNonce string) (*TokenResponse, error) {
	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		return nil, fmt.Errorf("token response carried no id token: %w", ErrMissingIDToken)
	}
	claims, err := c.cfg.Validator.Validate(ctx, rawID, expectedNonce)
	if err != nil {
		return nil, fmt.Errorf("id token rejected: %w", err)
	}
	var lifetime time.Duration
	if v, ok := tok.Extra("expires_in").(float64); ok && v > 0 {
		lifetime = time.Duration(v) * time.Second
	} else if !tok.Expiry.IsZero() {
		if d := tok.Expiry.Sub(c.clock()); d > 0 {
			lifetime = d
		}
	}
	return &TokenResponse{
		AccessToken:         AccessToken(tok.AccessToken),
		IdToken:             IdToken(rawID),
		RefreshToken:        RefreshToken(tok.RefreshToken),
		AccessTokenLifetime: lifetime,
		Claims:              claims,
	}, nil
}

// CreateProfile implements Client.
func (c *OIDCClient) CreateProfile(ctx context.Context, tr *TokenResponse) (*Profile, error) {
	const op = "OIDCClient.CreateProfile"
	if tr == nil {
		return nil, fmt.Errorf("%s: token response is nil: %w", op, ErrNilParameter)
	}
	p := &Profile{
		Claims:              tr.Claims,
		AccessToken:         tr.AccessToken,
		AccessTokenLifetime: tr.AccessTokenLifetime,
		IdToken:             tr.IdToken,
		RefreshToken:        tr.RefreshToken,
	}
	if c.cfg.UserInfoEndpoint == "" || tr.AccessToken == "" {
		return p, nil
	}
	userInfo, err := c.fetchUserInfo(ctx, tr.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.UserInfo = userInfo
	return p, nil
}

func (c *OIDCClient) fetchUserInfo(ctx context.Context, accessToken AccessToken) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+string(accessToken))
	req.Header.Set("Accept", "application/json")

	client := c.cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w: %w", err, ErrUserInfoFailed)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("unable to read userinfo response: %w: %w", err, ErrUserInfoFailed)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned %d: %w", resp.StatusCode, ErrUserInfoFailed)
	}
	var userInfo map[string]interface{}
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, fmt.Errorf("unable to decode userinfo response: %w: %w", err, ErrUserInfoFailed)
	}
	return userInfo, nil
}

// RenewProfile implements Client.
func (c *OIDCClient) RenewProfile(ctx context.Context, previous *Profile) (*Profile, error) {
	const op = "OIDCClient.RenewProfile"
	if previous == nil {
		return nil, fmt.Errorf("%s: previous profile is nil: %w", op, ErrNilParameter)
	}
	if previous.RefreshToken == "" {
		return nil, fmt.Errorf("%s: no refresh token to renew with: %w", op, ErrRefreshFailed)
	}
	ts := c.oauth2.TokenSource(c.httpContext(ctx), &oauth2.Token{
		RefreshToken: string(previous.RefreshToken),
	})
	tok, err := ts.Token()
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.ErrorCode == "invalid_grant" {
			return nil, fmt.Errorf("%s: refresh token was not accepted: %w", op, ErrInvalidGrant)
		}
		return nil, fmt.Errorf("%s: token refresh failed: %s: %w", op, err.Error(), ErrRefreshFailed)
	}

	tr := &TokenResponse{
		AccessToken:  AccessToken(tok.AccessToken),
		RefreshToken: RefreshToken(tok.RefreshToken),
	}
	if v, ok := tok.Extra("expires_in").(float64); ok && v > 0 {
		tr.AccessTokenLifetime = time.Duration(v) * time.Second
	} else if !tok.Expiry.IsZero() {
		if d := tok.Expiry.Sub(c.clock()); d > 0 {
			tr.AccessTokenLifetime = d
		}
	}
	// providers may omit tokens on refresh; omitted values carry over
	if tr.RefreshToken == "" {
		tr.RefreshToken = previous.RefreshToken
	}
	if rawID, _ := tok.Extra("id_token").(string); rawID != "" {
		expectedNonce := ""
		if c.cfg.CheckNonceInRefreshFlow {
			if n, ok := previous.Claims["nonce"].(string); ok {
				expectedNonce = n
			}
		}
		claims, err := c.cfg.Validator.Validate(ctx, rawID, expectedNonce)
		if err != nil {
			return nil, fmt.Errorf("%s: refreshed id token rejected: %w", op, err)
		}
		tr.IdToken = IdToken(rawID)
		tr.Claims = claims
	} else {
		tr.IdToken = previous.IdToken
		tr.Claims = previous.Claims
	}

	p, err := c.CreateProfile(ctx, tr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// EndSessionEndpoint implements Client.
func (c *OIDCClient) EndSessionEndpoint() string {
	return c.cfg.EndSessionEndpoint
}
