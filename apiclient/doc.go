// Package apiclient wraps a resty client so that every outgoing API request
// carries the current bearer credential and a 401 response triggers one
// shared refresh followed by exactly one retry of the original request.
//
// The package owns no credentials. It reads them through [CredentialSource] and
// asks a [Refresher] for a new one; the root session type implements both.
//
// Flow per request:
//
//  1. OnBeforeRequest sets Authorization: Bearer <token>, or removes it when the
//     source holds no credential.
//  2. The response is run through [Classify].
//  3. On [DecisionRetryAfterRefresh] the request is marked retried, a refresh is
//     joined, and the same request is issued again. A second 401 fails.
package apiclient
