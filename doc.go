// Package goAuthClient keeps a client-side authenticated session against an
// external identity provider.
//
// A [Session] acquires bearer credentials through the login endpoint, keeps
// them in a [tokenstore.Store], attaches the access credential to every
// request made through [Session.API], and refreshes it when the API answers
// 401. Concurrent 401s share one refresh call, and the failed request is
// retried once with the new credential.
//
// Sessions are built with [Builder]:
//
//	s, err := goAuthClient.New().
//		WithConfig(cfg).
//		WithStore(tokenstore.NewDiskStore(dir)).
//		Build()
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	if !s.Restore(ctx).IsAuthenticated {
//		err = s.Login(ctx, username, password)
//	}
//
// Session methods are safe to call from multiple goroutines.
//
// # Refresh credentials
//
// With [RefreshCookie] the refresh credential is an HttpOnly cookie that only
// the identity endpoint reads; the session keeps it in a private cookie jar.
// With [RefreshBody] it is stored next to the access credential and posted as
// {"refresh_token": ...}.
//
// # Failure model
//
// Nothing here is fatal. A failed refresh, a rejected restore or a 401 with
// no way to refresh all end in [StateUnauthenticated] with the store cleared.
// Login rejections are returned as *[AuthError] carrying the endpoint's
// detail message.
//
// # What this package must NOT do
//
//   - Verify token signatures. The identity provider owns issuance and
//     validation.
//   - Expose the refresh credential through the view or audit events.
//   - Import guard or the metrics exporters (no import cycles).
package goAuthClient
