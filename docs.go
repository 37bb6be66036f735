// oic provides the authentication core for a pluggable identity realm which
// delegates login to an external OpenID Connect provider: the authorization
// code flow, claim extraction, token lifecycle with transparent refresh, a
// local escape-hatch credential path and provider logout.
//
// See README.md
package oic
