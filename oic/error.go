package oic

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrNilParameter       = errors.New("nil parameter")
	ErrConfigIncompatible = errors.New("incompatible configuration")
	ErrInvalidIssuer      = errors.New("invalid issuer")
	ErrProtocolFlow       = errors.New("protocol flow failed")
	ErrMissingCredentials = errors.New("credentials are missing")
	ErrMissingIDToken     = errors.New("id_token is missing")
	ErrTokenFieldCheck    = errors.New("token field check failed")
	ErrInvalidGrant       = errors.New("invalid grant")
	ErrRefreshFailed      = errors.New("token refresh failed")
	ErrBadCredentials     = errors.New("bad credentials")
	ErrLoginFailed        = errors.New("login failed")
	ErrUserInfoFailed     = errors.New("user info failed")
	ErrMetadataFailed     = errors.New("provider metadata unavailable")
)

// HTTPAction is an error raised by the protocol layer when a sub-flow
// needs to answer the user agent directly instead of failing the
// request, typically with a redirect. Callers adapt it into an HTTP
// response rather than treating it as a hard failure.
type HTTPAction struct {
	// Code is the HTTP status to answer with.
	Code int

	// Location is the redirect target when Code is a 3xx status.
	Location string
}

func (a *HTTPAction) Error() string {
	if a.Location != "" {
		return fmt.Sprintf("http action %d -> %s", a.Code, a.Location)
	}
	return fmt.Sprintf("http action %d", a.Code)
}

// AsHTTPAction returns the HTTPAction wrapped in err, if there is one.
func AsHTTPAction(err error) (*HTTPAction, bool) {
	var action *HTTPAction
	if errors.As(err, &action) {
		return action, true
	}
	return nil, false
}
