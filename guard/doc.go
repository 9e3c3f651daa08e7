// Package guard gates navigation on the session view.
//
// [Decide] is the predicate: it looks only at the view it is given and the
// roles a route requires. [Require] adapts it to net/http middleware that
// redirects instead of serving the wrapped handler.
//
// # What this package must NOT do
//
//   - Refresh, restore or otherwise mutate the session.
//   - Cache a decision between requests.
package guard
