// Package web is the http surface over a realm: the login, callback
// and logout endpoints, the middleware that enforces provider-session
// expiry, and the cookie-backed session manager the flows run on.
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"github.com/oic-go/oic/oic"
)

// Handler serves the realm's endpoints.
type Handler struct {
	realm    *oic.Realm
	sessions *SessionManager
	logger   hclog.Logger
}

// NewHandler wires a realm to its http surface.
func NewHandler(realm *oic.Realm, sessions *SessionManager, logger hclog.Logger) *Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Handler{realm: realm, sessions: sessions, logger: logger}
}

// Routes mounts the realm endpoints. Mount the result at the
// application root so the paths line up with the redirect URIs
// registered with the provider.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.withUser)
	r.Get(oic.LoginPath, h.login)
	r.Post(oic.LoginPath, h.escapeHatchLogin)
	r.Get(oic.CallbackPath, h.callback)
	r.Get(oic.LogoutPath, h.logout)
	r.Post(oic.LogoutPath, h.logout)
	r.Get(oic.LoggedOutPath, h.loggedOut)
	return r
}

// withUser annotates the request with the session's user so the
// realm's identity store can recognize it.
func (h *Handler) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if username := h.sessions.Username(r); username != "" {
			r = oic.RequestWithUsername(r, username)
		}
		next.ServeHTTP(w, r)
	})
}

// TokenExpirationFilter enforces provider-session expiry on
// application requests. Wrap the application handler with it; the
// realm endpoints themselves stay outside so logout and re-login are
// always reachable.
func (h *Handler) TokenExpirationFilter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if username := h.sessions.Username(r); username != "" {
			r = oic.RequestWithUsername(r, username)
		}
		if action := h.realm.HandleTokenExpiration(r.Context(), r); action != nil {
			h.execute(w, r, action)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request, action *oic.HTTPAction) {
	if action.Location != "" {
		http.Redirect(w, r, action.Location, action.Code)
		return
	}
	http.Error(w, http.StatusText(action.Code), action.Code)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Session(w, r)
	redirect, err := h.realm.CommenceLogin(r.Context(), r, r.URL.Query().Get("from"), sess)
	if err != nil {
		h.logger.Error("unable to commence login", "error", err)
		http.Error(w, "login is unavailable", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *Handler) escapeHatchLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	username := r.PostFormValue("username")
	password := oic.Secret(r.PostFormValue("password"))
	identity, err := h.realm.AuthenticateEscapeHatch(username, password)
	if err != nil {
		http.Error(w, "invalid username or password", http.StatusUnauthorized)
		return
	}
	h.sessions.SetUsername(w, r, identity.Username)
	from := r.URL.Query().Get("from")
	if from == "" {
		from = "/"
	}
	http.Redirect(w, r, from, http.StatusFound)
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Session(w, r)
	result, err := h.realm.FinishLogin(r.Context(), r, sess)
	if err != nil {
		if action, ok := oic.AsHTTPAction(err); ok {
			h.execute(w, r, action)
			return
		}
		h.logger.Warn("login failed", "error", err)
		http.Error(w, "login failed", http.StatusUnauthorized)
		return
	}
	if bs, ok := sess.(*boundSession); ok {
		bs.setUsername(result.Identity.Username)
	} else {
		h.sessions.SetUsername(w, r, result.Identity.Username)
	}
	http.Redirect(w, r, result.Redirect, http.StatusFound)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Session(w, r)
	redirect, err := h.realm.Logout(r.Context(), r, sess)
	if err != nil {
		h.logger.Error("logout failed", "error", err)
		http.Error(w, "logout failed", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *Handler) loggedOut(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<html><body><p>You have been logged out.</p></body></html>"))
}
