package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oic-go/oic/oic"
)

// withCookies carries the recorder's cookies into a fresh request,
// like a browser following a redirect.
func withCookies(t *testing.T, rec *httptest.ResponseRecorder, req *http.Request) *http.Request {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	return req
}

func TestSessionManager_SetGetDelete(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	m := NewSessionManager()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	sess := m.Session(rec, req)

	assert.Empty(sess.Get("missing"))
	sess.Set(oic.SessionKeyState, "st-1")
	assert.Equal("st-1", sess.Get(oic.SessionKeyState))

	// a later request with the cookie sees the same session
	req2 := withCookies(t, rec, httptest.NewRequest("GET", "/", nil))
	sess2 := m.Session(httptest.NewRecorder(), req2)
	assert.Equal("st-1", sess2.Get(oic.SessionKeyState))

	sess2.Delete(oic.SessionKeyState)
	assert.Empty(sess2.Get(oic.SessionKeyState))
}

func TestSessionManager_RenewRotatesTheId(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	m := NewSessionManager()

	rec := httptest.NewRecorder()
	sess := m.Session(rec, httptest.NewRequest("GET", "/", nil))
	sess.Set(oic.SessionKeyNonce, "n-1")

	// read Set-Cookie off the live header; Result() snapshots on first use
	setCookies := func() []*http.Cookie {
		return (&http.Response{Header: rec.Header()}).Cookies()
	}
	cookies := setCookies()
	require.Len(cookies, 1)
	before := cookies[0].Value

	sess.Renew()
	cookies = setCookies()
	require.Len(cookies, 2)
	after := cookies[1].Value
	assert.NotEqual(before, after)

	// attributes survive the rotation
	assert.Equal("n-1", sess.Get(oic.SessionKeyNonce))

	// the old id no longer resolves
	stale := httptest.NewRequest("GET", "/", nil)
	stale.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: before})
	assert.Empty(m.Session(httptest.NewRecorder(), stale).Get(oic.SessionKeyNonce))

	fresh := httptest.NewRequest("GET", "/", nil)
	fresh.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: after})
	assert.Equal("n-1", m.Session(httptest.NewRecorder(), fresh).Get(oic.SessionKeyNonce))
}

func TestSessionManager_Destroy(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	m := NewSessionManager()

	rec := httptest.NewRecorder()
	sess := m.Session(rec, httptest.NewRequest("GET", "/", nil))
	sess.Set(oic.SessionKeyState, "st-1")
	sess.Destroy()
	assert.Empty(sess.Get(oic.SessionKeyState))

	req := withCookies(t, rec, httptest.NewRequest("GET", "/", nil))
	assert.Empty(m.Session(httptest.NewRecorder(), req).Get(oic.SessionKeyState))
}

func TestSessionManager_Username(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	m := NewSessionManager()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	assert.Empty(m.Username(req))

	m.SetUsername(rec, req, "alice")
	req2 := withCookies(t, rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal("alice", m.Username(req2))
}

func TestSessionManager_TTL(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	m := NewSessionManager(WithSessionTTL(time.Nanosecond))

	rec := httptest.NewRecorder()
	m.SetUsername(rec, httptest.NewRequest("GET", "/", nil), "alice")

	time.Sleep(time.Millisecond)
	req := withCookies(t, rec, httptest.NewRequest("GET", "/", nil))
	assert.Empty(m.Username(req))
}
