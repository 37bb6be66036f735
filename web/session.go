package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-uuid"

	"github.com/oic-go/oic/oic"
)

// DefaultSessionCookie names the session cookie.
const DefaultSessionCookie = "oic-session"

type sessionData struct {
	username string
	values   map[string]string
	expires  time.Time
}

// SessionManager tracks browser sessions through an opaque cookie.
// Session state lives server side; the cookie only carries the id.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*sessionData

	cookieName string
	secure     bool
	ttl        time.Duration
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithCookieName overrides the session cookie name.
func WithCookieName(name string) SessionOption {
	return func(m *SessionManager) { m.cookieName = name }
}

// WithSecureCookies marks session cookies Secure; on for any TLS
// deployment.
func WithSecureCookies(secure bool) SessionOption {
	return func(m *SessionManager) { m.secure = secure }
}

// WithSessionTTL bounds how long an idle session survives.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) { m.ttl = ttl }
}

// NewSessionManager creates an empty manager.
func NewSessionManager(opt ...SessionOption) *SessionManager {
	m := &SessionManager{
		sessions:   map[string]*sessionData{},
		cookieName: DefaultSessionCookie,
		ttl:        12 * time.Hour,
	}
	for _, o := range opt {
		o(m)
	}
	return m
}

func (m *SessionManager) newID() string {
	id, err := uuid.GenerateUUID()
	if err != nil {
		// rand.Read failing means the process is in far deeper trouble
		panic(err)
	}
	return id
}

func (m *SessionManager) setCookie(w http.ResponseWriter, id string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// lookup returns the live session for the request, or nil.
func (m *SessionManager) lookup(r *http.Request) (string, *sessionData) {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return "", nil
	}
	d := m.sessions[c.Value]
	if d == nil {
		return "", nil
	}
	if !d.expires.IsZero() && time.Now().After(d.expires) {
		delete(m.sessions, c.Value)
		return "", nil
	}
	return c.Value, d
}

// Username reports the user bound to the request's session, or "".
func (m *SessionManager) Username(r *http.Request) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, d := m.lookup(r)
	if d == nil {
		return ""
	}
	return d.username
}

// SetUsername binds a user to the request's session, creating one if
// needed.
func (m *SessionManager) SetUsername(w http.ResponseWriter, r *http.Request, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, d := m.lookup(r)
	if d == nil {
		_, d = m.create(w)
	}
	d.username = username
}

func (m *SessionManager) create(w http.ResponseWriter) (string, *sessionData) {
	id := m.newID()
	d := &sessionData{values: map[string]string{}}
	if m.ttl > 0 {
		d.expires = time.Now().Add(m.ttl)
	}
	m.sessions[id] = d
	m.setCookie(w, id, int(m.ttl/time.Second))
	return id, d
}

// Session binds an oic session view to the request, creating the
// underlying session on first write.
func (m *SessionManager) Session(w http.ResponseWriter, r *http.Request) oic.Session {
	return &boundSession{m: m, w: w, r: r}
}

// boundSession adapts one request's session to the oic Session
// contract.
type boundSession struct {
	m *SessionManager
	w http.ResponseWriter
	r *http.Request
	// id pins the session across Renew, which rewrites the cookie the
	// request no longer reflects
	id string
}

func (s *boundSession) data(create bool) *sessionData {
	if s.id != "" {
		if d := s.m.sessions[s.id]; d != nil {
			return d
		}
	}
	id, d := s.m.lookup(s.r)
	if d == nil && create {
		id, d = s.m.create(s.w)
	}
	s.id = id
	return d
}

func (s *boundSession) Get(key string) string {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	d := s.data(false)
	if d == nil {
		return ""
	}
	return d.values[key]
}

func (s *boundSession) Set(key, value string) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.data(true).values[key] = value
}

func (s *boundSession) Delete(key string) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if d := s.data(false); d != nil {
		delete(d.values, key)
	}
}

// setUsername binds a user to this session, even when Renew has
// already rotated the id out from under the request cookie.
func (s *boundSession) setUsername(username string) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.data(true).username = username
}

// Renew rotates the session id, keeping the stored attributes.
func (s *boundSession) Renew() {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	d := s.data(false)
	if d == nil {
		return
	}
	delete(s.m.sessions, s.id)
	id := s.m.newID()
	s.m.sessions[id] = d
	s.id = id
	s.m.setCookie(s.w, id, int(s.m.ttl/time.Second))
}

// Destroy drops the session and expires the cookie.
func (s *boundSession) Destroy() {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.data(false) != nil {
		delete(s.m.sessions, s.id)
	}
	s.id = ""
	s.m.setCookie(s.w, "", -1)
}
