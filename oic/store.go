package oic

import (
	"context"
	"net/http"
	"sync"
)

// Identity property keys persisted alongside credentials.
const (
	PropertyEmail     = "email"
	PropertyFullName  = "fullName"
	PropertyAvatarURL = "avatarUrl"
)

// IdentityStore persists authenticated identities and their provider
// credentials between requests. Implementations must be safe for
// concurrent use.
type IdentityStore interface {
	// CurrentUsername reports the authenticated user bound to the
	// request, or "" for an anonymous request.
	CurrentUsername(r *http.Request) string

	// Credentials returns the stored provider credentials for the
	// user, or nil when none were recorded.
	Credentials(username string) *Credentials

	// SetCredentials replaces the stored credentials for the user.
	SetCredentials(username string, creds *Credentials)

	// SetProperty records an identity property such as PropertyEmail.
	SetProperty(username, key, value string)

	// SetAuthorities replaces the user's granted authorities.
	SetAuthorities(username string, authorities []string)

	// APITokenMatches reports whether the presented secret is a valid
	// non-interactive API token for the user. Flows that carry such a
	// token bypass session expiry enforcement.
	APITokenMatches(username, token string) bool
}

// SecurityListener receives notifications as identities are
// established. Both calls happen on the request goroutine before the
// final redirect is issued.
type SecurityListener interface {
	// Authenticated fires once the identity is extracted and verified.
	Authenticated(identity *ExtractedIdentity)

	// LoggedIn fires once the identity is bound to the local session.
	LoggedIn(username string)
}

type nullListener struct{}

func (nullListener) Authenticated(*ExtractedIdentity) {}
func (nullListener) LoggedIn(string)                  {}

// MemoryIdentityStore is an in-memory IdentityStore. It recognizes the
// current user from the request context value set by the web layer.
type MemoryIdentityStore struct {
	mu          sync.RWMutex
	creds       map[string]*Credentials
	props       map[string]map[string]string
	authorities map[string][]string
	apiTokens   map[string]string
}

// NewMemoryIdentityStore creates an empty in-memory store.
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		creds:       map[string]*Credentials{},
		props:       map[string]map[string]string{},
		authorities: map[string][]string{},
		apiTokens:   map[string]string{},
	}
}

type usernameContextKey struct{}

// RequestWithUsername binds the authenticated username to the request,
// for the web layer to consume on later middleware and handlers.
func RequestWithUsername(r *http.Request, username string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), usernameContextKey{}, username))
}

// CurrentUsername implements IdentityStore.
func (s *MemoryIdentityStore) CurrentUsername(r *http.Request) string {
	if r == nil {
		return ""
	}
	u, _ := r.Context().Value(usernameContextKey{}).(string)
	return u
}

// Credentials implements IdentityStore.
func (s *MemoryIdentityStore) Credentials(username string) *Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds[username]
}

// SetCredentials implements IdentityStore.
func (s *MemoryIdentityStore) SetCredentials(username string, creds *Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[username] = creds
}

// SetProperty implements IdentityStore.
func (s *MemoryIdentityStore) SetProperty(username, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.props[username]
	if p == nil {
		p = map[string]string{}
		s.props[username] = p
	}
	p[key] = value
}

// Property returns a previously recorded identity property.
func (s *MemoryIdentityStore) Property(username, key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.props[username][key]
}

// SetAuthorities implements IdentityStore.
func (s *MemoryIdentityStore) SetAuthorities(username string, authorities []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorities[username] = authorities
}

// Authorities returns the user's granted authorities.
func (s *MemoryIdentityStore) Authorities(username string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authorities[username]
}

// SetAPIToken registers a non-interactive API token for the user.
func (s *MemoryIdentityStore) SetAPIToken(username, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiTokens[username] = token
}

// APITokenMatches implements IdentityStore.
func (s *MemoryIdentityStore) APITokenMatches(username, token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.apiTokens[username]
	return ok && t != "" && t == token
}
