package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goAuthClient/tokenstore"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRejected
	LoginFailureInvalidToken
	LoginFailureCommit
)

// LoginResult carries the accepted credentials or failure metadata.
type LoginResult struct {
	Failure     LoginFailureKind
	Err         error
	Credentials tokenstore.Credentials
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	// Submit posts the user's credentials to the identity endpoint.
	Submit func(ctx context.Context, identifier, secret string) (tokenstore.Credentials, error)
	// ValidAccess reports whether an access credential is decodable and unexpired.
	ValidAccess func(string) bool
	// Commit installs accepted credentials as the current session.
	Commit func(context.Context, tokenstore.Credentials) error
	// InvalidToken is returned when the endpoint answers with an unusable credential.
	InvalidToken error
}

// RunLogin exchanges identifier and secret for a credential pair.
func RunLogin(ctx context.Context, identifier, secret string, deps LoginDeps) LoginResult {
	creds, err := deps.Submit(ctx, identifier, secret)
	if err != nil {
		return LoginResult{Failure: LoginFailureRejected, Err: err}
	}

	if creds.AccessToken == "" || !deps.ValidAccess(creds.AccessToken) {
		err := deps.InvalidToken
		if err == nil {
			err = errors.New("identity endpoint returned an unusable access credential")
		}
		return LoginResult{Failure: LoginFailureInvalidToken, Err: err}
	}

	if err := deps.Commit(ctx, creds); err != nil {
		return LoginResult{Failure: LoginFailureCommit, Err: err}
	}

	return LoginResult{Credentials: creds}
}
