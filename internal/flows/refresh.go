package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goAuthClient/tokenstore"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureRejected
	RefreshFailureInvalidToken
	RefreshFailureSuperseded
	RefreshFailureCommit
)

// RefreshResult carries the new credential pair or failure metadata.
type RefreshResult struct {
	Failure     RefreshFailureKind
	Err         error
	Credentials tokenstore.Credentials
	// Discarded reports whether the session was cleared as a consequence of
	// the failure.
	Discarded bool
}

// RefreshInput is the session snapshot a refresh starts from. Generation
// identifies that snapshot so a late result can be recognized as stale.
type RefreshInput struct {
	Current    tokenstore.Credentials
	Generation uint64
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	// Exchange trades the refresh credential for a new pair. An empty
	// refreshToken means the credential travels in a cookie.
	Exchange    func(ctx context.Context, refreshToken string) (tokenstore.Credentials, error)
	ValidAccess func(string) bool
	// Commit installs the new pair. It returns Superseded when the session
	// moved past generation since the refresh started.
	Commit func(ctx context.Context, generation uint64, creds tokenstore.Credentials) error
	// Discard clears the session after a rejected refresh unless it moved
	// past generation.
	Discard      func(ctx context.Context, generation uint64) error
	Superseded   error
	InvalidToken error
	Warn         func(string, ...any)
}

// RunRefresh performs one refresh exchange. It must be called from a
// single-flight gate; the flow itself does not deduplicate.
func RunRefresh(ctx context.Context, in RefreshInput, deps RefreshDeps) RefreshResult {
	creds, err := deps.Exchange(ctx, in.Current.RefreshToken)
	if err != nil {
		return discardAfter(ctx, in.Generation, RefreshResult{Failure: RefreshFailureRejected, Err: err}, deps)
	}

	if creds.AccessToken == "" || !deps.ValidAccess(creds.AccessToken) {
		err := deps.InvalidToken
		if err == nil {
			err = errors.New("identity endpoint returned an unusable access credential")
		}
		return discardAfter(ctx, in.Generation, RefreshResult{Failure: RefreshFailureInvalidToken, Err: err}, deps)
	}

	if err := deps.Commit(ctx, in.Generation, creds); err != nil {
		if deps.Superseded != nil && errors.Is(err, deps.Superseded) {
			return RefreshResult{Failure: RefreshFailureSuperseded, Err: err}
		}
		return discardAfter(ctx, in.Generation, RefreshResult{Failure: RefreshFailureCommit, Err: err}, deps)
	}

	return RefreshResult{Credentials: creds}
}

func discardAfter(ctx context.Context, generation uint64, res RefreshResult, deps RefreshDeps) RefreshResult {
	if deps.Discard == nil {
		return res
	}
	if err := deps.Discard(ctx, generation); err != nil {
		if deps.Warn != nil {
			deps.Warn("goAuthClient: clearing credentials after failed refresh: %v", err)
		}
		return res
	}
	res.Discarded = true
	return res
}
