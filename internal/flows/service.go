package flows

import (
	"context"

	"github.com/MrEthical07/goAuthClient/tokenstore"
)

// Service is the centralized flow runner built once by the root session.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

func (s Service) Login(ctx context.Context, identifier, secret string) LoginResult {
	return RunLogin(ctx, identifier, secret, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, in RefreshInput) RefreshResult {
	return RunRefresh(ctx, in, s.deps.Refresh)
}

func (s Service) Restore(ctx context.Context, generation uint64) RestoreResult {
	return RunRestore(ctx, generation, s.deps.Restore)
}

func (s Service) Logout(ctx context.Context, current tokenstore.Credentials) LogoutResult {
	return RunLogout(ctx, current, s.deps.Logout)
}
