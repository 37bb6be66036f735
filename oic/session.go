package oic

import "sync"

// Session attribute keys used by the login flows.
const (
	SessionKeyRedirectOnLogin = "oic-redirect-on-login-url"
	SessionKeyState           = "oic-state"
	SessionKeyNonce           = "oic-nonce"
	SessionKeyPKCEVerifier    = "oic-pkce-verifier"
)

// Session is the per-browser session the flows read and write. The
// http surface supplies an implementation bound to the current
// request.
type Session interface {
	Get(key string) string
	Set(key, value string)
	Delete(key string)

	// Renew rotates the session identifier while retaining the stored
	// attributes. Called when the authentication level changes, so a
	// pre-login session id cannot be replayed after login.
	Renew()

	// Destroy invalidates the session and drops its attributes.
	Destroy()
}

// MemorySession is a Session backed by a map. The zero value is ready
// to use.
type MemorySession struct {
	mu      sync.Mutex
	values  map[string]string
	renews  int
	destroy int
}

func (s *MemorySession) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

func (s *MemorySession) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = map[string]string{}
	}
	s.values[key] = value
}

func (s *MemorySession) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func (s *MemorySession) Renew() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renews++
}

func (s *MemorySession) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = nil
	s.destroy++
}

// RenewCount reports how many times Renew was called.
func (s *MemorySession) RenewCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renews
}

// Destroyed reports whether Destroy was called.
func (s *MemorySession) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroy > 0
}
