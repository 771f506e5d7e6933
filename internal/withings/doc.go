// Package withings implements the subset of the Withings API the weekly
// pivot tools need: the OAuth2 authorization-code flow with a local callback
// server, token persistence and refresh, and the measure service
// (action=getmeas) for scale body-composition measurements.
//
// The Withings token endpoint does not speak standard OAuth2: requests carry
// an action parameter and responses wrap the token in a {status, body}
// envelope, so code exchange and refresh are explicit POSTs while
// golang.org/x/oauth2 is used for building the authorization URL.
package withings
