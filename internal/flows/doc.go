// Package flows contains pure-function orchestrators for every Session
// operation.
//
// Each flow function (RunLogin, RunRefresh, RunRestore, RunLogout) accepts a
// typed dependency struct and returns a result carrying a failure kind. The
// root Session maps those kinds to its public errors, metrics, and audit
// events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the identity endpoint, the token store,
// and the token codec. They do NOT own any of these resources; ownership stays
// with the Session.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goAuthClient (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
