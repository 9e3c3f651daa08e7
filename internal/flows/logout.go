package flows

import (
	"context"

	"github.com/MrEthical07/goAuthClient/tokenstore"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	// Notify tells the identity endpoint about the logout. Its failure does
	// not prevent the local logout.
	Notify  func(ctx context.Context, refreshToken string) error
	Discard func(context.Context) error
}

// LogoutResult separates the best-effort notification from the local clear.
type LogoutResult struct {
	NotifyErr error
	Err       error
}

// RunLogout notifies the endpoint and always clears the session.
func RunLogout(ctx context.Context, current tokenstore.Credentials, deps LogoutDeps) LogoutResult {
	var res LogoutResult
	if deps.Notify != nil {
		res.NotifyErr = deps.Notify(ctx, current.RefreshToken)
	}
	res.Err = deps.Discard(ctx)
	return res
}
