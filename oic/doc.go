// Package oic implements the authentication core of an OpenID Connect
// realm: it drives the 3-legged authorization code flow against an
// external identity provider, maps the returned claims onto a local
// identity via configurable field path expressions, tracks token
// lifetime and transparently refreshes expired tokens, filters provider
// algorithm lists when restricted-cryptography mode is active, and
// offers a provider-independent escape-hatch credential path.
//
// The package deliberately does not implement the host application's
// session or user model. Those are consumed through the narrow
// Session and IdentityStore contracts, and the OIDC wire protocol
// itself is driven through the Client contract, for which OIDCClient is
// the default implementation built on github.com/coreos/go-oidc and
// golang.org/x/oauth2.
package oic
