package oic

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AuthenticateEscapeHatch checks the presented credentials against the
// locally configured emergency user, never contacting the provider.
// Every call sleeps a random one to two seconds and failures share one
// generic error, so a caller cannot time or read which part of the
// check failed. On success the identity carries the authenticated
// authority plus the configured group, and is bound to the store like
// any other login.
func (r *Realm) AuthenticateEscapeHatch(username string, password Secret) (*ExtractedIdentity, error) {
	const op = "Realm.AuthenticateEscapeHatch"
	r.randMu.Lock()
	jitter := time.Duration(1000+r.rand.Intn(1000)) * time.Millisecond
	r.randMu.Unlock()
	r.sleep(jitter)

	hatch := r.cfg.EscapeHatch
	// both comparisons always run, a username mismatch must not
	// return faster than a password mismatch
	userMatch := hatch.Username != "" && username == hatch.Username
	passMatch := hatch.Secret != "" &&
		bcrypt.CompareHashAndPassword([]byte(hatch.Secret), []byte(password)) == nil
	if !hatch.Enabled || !userMatch || !passMatch {
		return nil, fmt.Errorf("%s: %w", op, ErrBadCredentials)
	}

	identity := &ExtractedIdentity{
		Username:    hatch.Username,
		Authorities: []string{AuthenticatedAuthority},
	}
	if hatch.Group != "" {
		identity.Authorities = append(identity.Authorities, hatch.Group)
	}
	r.store.SetAuthorities(identity.Username, identity.Authorities)
	r.listener.Authenticated(identity)
	r.listener.LoggedIn(identity.Username)
	r.logger.Warn("escape hatch login", "user", identity.Username)
	return identity, nil
}
