package oic

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	multierror "github.com/hashicorp/go-multierror"
	"golang.org/x/crypto/bcrypt"
)

// Secret is a generic redacted secret value.
type Secret string

// RedactedSecret is the redacted string or json for a secret value
const RedactedSecret = "[REDACTED: secret]"

// String will redact the secret
func (s Secret) String() string {
	return RedactedSecret
}

// MarshalJSON will redact the secret
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedSecret)
}

// QueryParameter is an extra key/value pair appended to the login or
// logout request. A parameter with an empty value is appended as a bare
// flag (key only).
type QueryParameter struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value,omitempty"`
}

// EscapeHatch configures the local emergency credential path that is
// evaluated independently of the identity provider.
type EscapeHatch struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username,omitempty"`

	// Secret holds the salted hash of the password. A configured value
	// that is not already a bcrypt hash is re-hashed at configuration
	// time, so operators may supply it as plaintext once.
	Secret Secret `yaml:"secret,omitempty"`

	// Group is an optional extra authority granted on success.
	Group string `yaml:"group,omitempty"`
}

// DefaultAllowedClockSkew widens token lifetimes to absorb drift
// between the provider's clock and ours.
const DefaultAllowedClockSkew = 60 * time.Second

// RealmConfig is the durable realm configuration. Field path
// expressions are stored as their source strings; the compiled form is
// derived state owned by the Realm.
type RealmConfig struct {
	ClientID     string              `yaml:"clientId"`
	ClientSecret ClientSecret        `yaml:"clientSecret"`
	Server       ServerConfiguration `yaml:"-"`

	// RootURL is the application's own root. Every post-login redirect
	// target must resolve under it.
	RootURL string `yaml:"rootUrl"`

	// RootURLFromRequest derives the root from the inbound request
	// instead; requires a well configured proxy/ingress.
	RootURLFromRequest bool `yaml:"rootUrlFromRequest,omitempty"`

	DisableSSLVerification         bool `yaml:"disableSslVerification,omitempty"`
	DisableTokenVerification       bool `yaml:"disableTokenVerification,omitempty"`
	NonceDisabled                  bool `yaml:"nonceDisabled,omitempty"`
	TokenExpirationCheckDisabled   bool `yaml:"tokenExpirationCheckDisabled,omitempty"`
	AllowTokenAccessWithoutSession bool `yaml:"allowTokenAccessWithoutOicSession,omitempty"`
	PKCEEnabled                    bool `yaml:"pkceEnabled,omitempty"`
	SendScopesInTokenRequest       bool `yaml:"sendScopesInTokenRequest,omitempty"`

	// CheckNonceInRefreshFlow opts into nonce validation during
	// refresh. Providers should not echo the nonce on refresh
	// responses, but when one does it must match, so this stays
	// configurable.
	CheckNonceInRefreshFlow bool `yaml:"checkNonceInRefreshFlow,omitempty"`

	// AllowedClockSkewSeconds is folded into token expiry once, at
	// Credentials construction time.
	AllowedClockSkewSeconds *int64 `yaml:"allowedTokenExpirationClockSkewSeconds,omitempty"`

	LogoutFromProvider    bool   `yaml:"logoutFromOpenidProvider"`
	PostLogoutRedirectURL string `yaml:"postLogoutRedirectUrl,omitempty"`

	UserNameField    string `yaml:"userNameField,omitempty"`
	EmailField       string `yaml:"emailFieldName,omitempty"`
	FullNameField    string `yaml:"fullNameFieldName,omitempty"`
	GroupsField      string `yaml:"groupsFieldName,omitempty"`
	AvatarField      string `yaml:"avatarFieldName,omitempty"`
	NestedGroupField string `yaml:"nestedGroupFieldName,omitempty"`

	TokenFieldToCheckKey   string `yaml:"tokenFieldToCheckKey,omitempty"`
	TokenFieldToCheckValue string `yaml:"tokenFieldToCheckValue,omitempty"`

	EscapeHatch EscapeHatch `yaml:"escapeHatch,omitempty"`

	LoginQueryParameters  []QueryParameter `yaml:"loginQueryParameters,omitempty"`
	LogoutQueryParameters []QueryParameter `yaml:"logoutQueryParameters,omitempty"`

	// CaseSensitiveUserIds selects the identity-equality rule applied
	// to user names; the default is case-insensitive matching.
	CaseSensitiveUserIds bool `yaml:"caseSensitiveUserIds,omitempty"`

	// RestrictedCryptography requires approved algorithms only and
	// rejects verification-disabling options at configuration time.
	RestrictedCryptography bool `yaml:"restrictedCryptography,omitempty"`
}

// Validate the realm configuration. All configuration rejections are
// accumulated so an operator sees every conflict at once.
func (c *RealmConfig) Validate() error {
	const op = "RealmConfig.Validate"
	if c == nil {
		return fmt.Errorf("%s: realm config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	if c.ClientSecret == "" {
		result = multierror.Append(result, fmt.Errorf("client secret is empty: %w", ErrInvalidParameter))
	}
	if c.Server == nil {
		result = multierror.Append(result, fmt.Errorf("server configuration is missing: %w", ErrNilParameter))
	}
	if c.RootURL == "" {
		result = multierror.Append(result, fmt.Errorf("root url is empty: %w", ErrInvalidParameter))
	} else if _, err := url.Parse(c.RootURL); err != nil {
		result = multierror.Append(result, fmt.Errorf("root url is invalid: %w", err))
	}
	if c.RestrictedCryptography {
		if c.DisableSSLVerification {
			result = multierror.Append(result, fmt.Errorf("SSL verification cannot be disabled in restricted-cryptography mode: %w", ErrConfigIncompatible))
		}
		if c.DisableTokenVerification {
			result = multierror.Append(result, fmt.Errorf("token verification cannot be disabled in restricted-cryptography mode: %w", ErrConfigIncompatible))
		}
		if c.EscapeHatch.Enabled {
			result = multierror.Append(result, fmt.Errorf("escape hatch cannot be enabled in restricted-cryptography mode: %w", ErrConfigIncompatible))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// AllowedClockSkew returns the configured skew, or the default.
func (c *RealmConfig) AllowedClockSkew() time.Duration {
	if c.AllowedClockSkewSeconds == nil {
		return DefaultAllowedClockSkew
	}
	return time.Duration(*c.AllowedClockSkewSeconds) * time.Second
}

// bcryptHashPattern recognizes an already-hashed escape hatch secret.
var bcryptHashPattern = regexp.MustCompile(`\A\$[^$]+\$\d+\$[./0-9A-Za-z]{53}\z`)

// Realm is the authentication core for one identity realm. It owns the
// compiled field path expressions, the injected clock and jitter
// sources and the collaborator contracts, and carries every flow:
// login, callback, refresh, escape hatch and logout.
type Realm struct {
	cfg    *RealmConfig
	logger hclog.Logger
	clock  Clock
	randMu sync.Mutex
	rand   *rand.Rand
	sleep  func(time.Duration)

	rr            *ResourceRetriever
	store         IdentityStore
	listener      SecurityListener
	clientFactory ClientFactory
	idStrategy    IdStrategy

	mdCache metadataCache

	userNamePath   *FieldPath
	emailPath      *FieldPath
	fullNamePath   *FieldPath
	groupsPath     *FieldPath
	avatarPath     *FieldPath
	tokenCheckPath *FieldPath
}

// realmOptions is the set of available options for NewRealm
type realmOptions struct {
	withLogger        hclog.Logger
	withClock         Clock
	withRand          *rand.Rand
	withSleep         func(time.Duration)
	withRetriever     *ResourceRetriever
	withListener      SecurityListener
	withClientFactory ClientFactory
}

func realmDefaults() realmOptions {
	return realmOptions{
		withLogger: hclog.NewNullLogger(),
		withClock:  time.Now,
		withSleep:  time.Sleep,
	}
}

func getRealmOpts(opt ...Option) realmOptions {
	opts := realmDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides a logger for the realm.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*realmOptions); ok {
			o.withLogger = l
		}
	}
}

// WithClock substitutes the time source used for expiry comparisons.
func WithClock(c Clock) Option {
	return func(o interface{}) {
		if o, ok := o.(*realmOptions); ok {
			o.withClock = c
		}
	}
}

// WithRandom substitutes the random source used for escape-hatch
// jitter. It has no other security purpose.
func WithRandom(r *rand.Rand) Option {
	return func(o interface{}) {
		if o, ok := o.(*realmOptions); ok {
			o.withRand = r
		}
	}
}

// WithSleep substitutes the sleep function used for escape-hatch
// jitter, so tests can record the delay instead of waiting it out.
func WithSleep(s func(time.Duration)) Option {
	return func(o interface{}) {
		if o, ok := o.(*realmOptions); ok {
			o.withSleep = s
		}
	}
}

// WithResourceRetriever overrides the retriever used for discovery and
// JWKS documents.
func WithResourceRetriever(rr *ResourceRetriever) Option {
	return func(o interface{}) {
		if o, ok := o.(*realmOptions); ok {
			o.withRetriever = rr
		}
	}
}

// WithSecurityListener registers a listener for authenticated/logged-in
// notifications.
func WithSecurityListener(l SecurityListener) Option {
	return func(o interface{}) {
		if o, ok := o.(*realmOptions); ok {
			o.withListener = l
		}
	}
}

// WithClientFactory overrides how the protocol client collaborator is
// built from a client configuration.
func WithClientFactory(f ClientFactory) Option {
	return func(o interface{}) {
		if o, ok := o.(*realmOptions); ok {
			o.withClientFactory = f
		}
	}
}

// NewRealm validates cfg, compiles its field path expressions, and
// normalizes the escape-hatch secret to its salted-hash form.
// Supported options: WithLogger, WithClock, WithRandom, WithSleep,
// WithResourceRetriever, WithSecurityListener, WithClientFactory
func NewRealm(cfg *RealmConfig, store IdentityStore, opt ...Option) (*Realm, error) {
	const op = "NewRealm"
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: realm config is invalid: %w", op, err)
	}
	if store == nil {
		return nil, fmt.Errorf("%s: identity store is nil: %w", op, ErrNilParameter)
	}
	opts := getRealmOpts(opt...)

	r := &Realm{
		cfg:           cfg,
		logger:        opts.withLogger,
		clock:         opts.withClock,
		rand:          opts.withRand,
		sleep:         opts.withSleep,
		rr:            opts.withRetriever,
		store:         store,
		listener:      opts.withListener,
		clientFactory: opts.withClientFactory,
	}
	if r.rand == nil {
		r.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if r.rr == nil {
		var rrOpts []Option
		if cfg.DisableSSLVerification {
			rrOpts = append(rrOpts, WithInsecureSkipVerify())
		}
		r.rr = NewResourceRetriever(rrOpts...)
	}
	if r.listener == nil {
		r.listener = nullListener{}
	}
	if r.clientFactory == nil {
		r.clientFactory = NewOIDCClient
	}
	if cfg.CaseSensitiveUserIds {
		r.idStrategy = CaseSensitiveIdStrategy()
	} else {
		r.idStrategy = CaseInsensitiveIdStrategy()
	}

	r.SetUserNameField(cfg.UserNameField)
	r.SetEmailField(cfg.EmailField)
	r.SetFullNameField(cfg.FullNameField)
	r.SetGroupsField(cfg.GroupsField)
	r.SetAvatarField(cfg.AvatarField)
	r.SetTokenFieldToCheckKey(cfg.TokenFieldToCheckKey)
	r.SetEscapeHatchSecret(cfg.EscapeHatch.Secret)

	return r, nil
}

// Config returns the realm's configuration.
func (r *Realm) Config() *RealmConfig { return r.cfg }

// IdStrategy returns the identity-equality rule in effect.
func (r *Realm) IdStrategy() IdStrategy { return r.idStrategy }

// SetUserNameField stores the source string and recompiles the derived
// path. An empty value falls back to the "sub" claim.
func (r *Realm) SetUserNameField(expr string) {
	if expr == "" {
		expr = "sub"
	}
	r.cfg.UserNameField = expr
	r.userNamePath = CompileFieldPath(expr, r.logger, "user name field")
}

// SetEmailField stores the source string and recompiles the derived path.
func (r *Realm) SetEmailField(expr string) {
	r.cfg.EmailField = expr
	r.emailPath = CompileFieldPath(expr, r.logger, "email field")
}

// SetFullNameField stores the source string and recompiles the derived path.
func (r *Realm) SetFullNameField(expr string) {
	r.cfg.FullNameField = expr
	r.fullNamePath = CompileFieldPath(expr, r.logger, "full name field")
}

// SetGroupsField stores the source string and recompiles the derived path.
func (r *Realm) SetGroupsField(expr string) {
	r.cfg.GroupsField = expr
	r.groupsPath = CompileFieldPath(expr, r.logger, "groups field")
}

// SetAvatarField stores the source string and recompiles the derived
// path. An empty value falls back to the "picture" claim, the OIDC
// profile default.
func (r *Realm) SetAvatarField(expr string) {
	if expr == "" {
		expr = "picture"
	}
	r.cfg.AvatarField = expr
	r.avatarPath = CompileFieldPath(expr, r.logger, "avatar field")
}

// SetTokenFieldToCheckKey stores the source string and recompiles the
// derived path.
func (r *Realm) SetTokenFieldToCheckKey(expr string) {
	r.cfg.TokenFieldToCheckKey = expr
	r.tokenCheckPath = CompileFieldPath(expr, r.logger, "token field to check")
}

// SetEscapeHatchSecret normalizes the secret to its bcrypt hash. A
// value already matching the hash pattern is kept as is.
func (r *Realm) SetEscapeHatchSecret(secret Secret) {
	if secret == "" {
		r.cfg.EscapeHatch.Secret = ""
		return
	}
	if bcryptHashPattern.MatchString(string(secret)) {
		r.cfg.EscapeHatch.Secret = secret
		return
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		// only reachable for >72 byte inputs; treat as unset
		r.logger.Warn("unable to hash escape hatch secret", "error", err)
		r.cfg.EscapeHatch.Secret = ""
		return
	}
	r.cfg.EscapeHatch.Secret = Secret(hashed)
}
