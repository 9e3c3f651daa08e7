package flows

import (
	"context"

	"github.com/MrEthical07/goAuthClient/tokenstore"
)

// RestoreFailureKind classifies why a restore ended unauthenticated.
type RestoreFailureKind int

const (
	RestoreFailureNone RestoreFailureKind = iota
	RestoreFailureLoad
	RestoreFailureNoRefreshCredential
	RestoreFailureRefresh
)

// RestoreResult reports the outcome of a silent restore.
type RestoreResult struct {
	Failure       RestoreFailureKind
	Err           error
	Authenticated bool
	// Networked reports whether a refresh call was attempted.
	Networked bool
}

// RestoreDeps captures restore flow dependencies.
type RestoreDeps struct {
	Load func(context.Context) (tokenstore.Credentials, error)
	// Adopt installs persisted credentials so the refresh can use them.
	Adopt func(generation uint64, creds tokenstore.Credentials)
	// HasRefreshCredential is consulted after Adopt.
	HasRefreshCredential func() bool
	// RequireRefreshCredential skips the network call when no refresh
	// credential is known.
	RequireRefreshCredential bool
	ValidAccess              func(string) bool
	Refresh                  func(context.Context) (string, error)
	Discard                  func(ctx context.Context, generation uint64) error
}

// RunRestore re-establishes a session without user interaction, starting from
// the session snapshot identified by generation. Failures end unauthenticated
// with the store cleared; the error is reported for logging only.
func RunRestore(ctx context.Context, generation uint64, deps RestoreDeps) RestoreResult {
	creds, err := deps.Load(ctx)
	if err != nil {
		_ = deps.Discard(ctx, generation)
		return RestoreResult{Failure: RestoreFailureLoad, Err: err}
	}
	deps.Adopt(generation, creds)

	if deps.RequireRefreshCredential && !deps.HasRefreshCredential() {
		if creds.AccessToken != "" && deps.ValidAccess(creds.AccessToken) {
			return RestoreResult{Authenticated: true}
		}
		_ = deps.Discard(ctx, generation)
		return RestoreResult{Failure: RestoreFailureNoRefreshCredential}
	}

	if _, err := deps.Refresh(ctx); err != nil {
		return RestoreResult{Failure: RestoreFailureRefresh, Err: err, Networked: true}
	}
	return RestoreResult{Authenticated: true, Networked: true}
}
