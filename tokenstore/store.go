package tokenstore

import (
	"context"
	"errors"
)

const (
	// AccessTokenKey names the persisted access credential entry.
	AccessTokenKey = "access_token"
	// RefreshTokenKey names the persisted refresh credential entry.
	RefreshTokenKey = "refresh_token"
)

// ErrStoreUnavailable wraps backend failures.
var ErrStoreUnavailable = errors.New("token store unavailable")

// Credentials is the persisted credential pair. RefreshToken is empty when the
// refresh credential is held in a cookie.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// IsZero reports whether no credential is present.
func (c Credentials) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Store persists one credential pair.
//
// Load returns the zero Credentials and a nil error when nothing is stored.
// Save with an empty RefreshToken keeps the previously stored refresh
// credential. Clear removes both entries and is idempotent.
type Store interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, creds Credentials) error
	Clear(ctx context.Context) error
}
