// Package idptest runs a fake identity provider and protected API over
// httptest for session tests.
//
// Access credentials are HS256 tokens carrying sub, roles and exp. Refresh
// credentials are opaque and travel either in a refresh_token cookie or in the
// JSON body, matching the two refresh modes the session supports.
package idptest
