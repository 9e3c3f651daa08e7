// Package internal holds code private to goAuthClient.
//
// # Sub-packages
//
//   - flows: pure orchestrators for login, refresh, restore and logout
//   - idptest: fake identity provider and protected API for tests
//
// # What this package must NOT do
//
//   - Export types that appear in the public goAuthClient API.
package internal
