package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// DefaultSkew is subtracted from a credential's lifetime so that a token about
// to expire is not sent on a request that would outlive it.
const DefaultSkew = 5 * time.Second

const rolesClaim = "roles"

var (
	// ErrMalformed is returned when the token cannot be split and decoded.
	ErrMalformed = errors.New("malformed token")
	// ErrMissingExpiry is returned when the token carries no usable exp claim.
	ErrMissingExpiry = errors.New("token has no expiry")
)

// CodecConfig configures a [Codec].
type CodecConfig struct {
	// Skew defaults to DefaultSkew when zero. Negative values are clamped to zero.
	Skew  time.Duration
	Clock clockwork.Clock
}

// Codec decodes access credentials without verifying them.
//
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	skew   time.Duration
	clock  clockwork.Clock
	parser *jwt.Parser
}

// Claims is the subset of access-token claims the client cares about.
type Claims struct {
	Subject   string
	Type      string
	ExpiresAt time.Time
	Roles     []string
}

// NewCodec returns a Codec for cfg.
func NewCodec(cfg CodecConfig) *Codec {
	skew := cfg.Skew
	if skew == 0 {
		skew = DefaultSkew
	}
	if skew < 0 {
		skew = 0
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Codec{
		skew:   skew,
		clock:  clock,
		parser: jwt.NewParser(),
	}
}

// Skew reports the expiry margin applied by IsExpired.
func (c *Codec) Skew() time.Duration {
	return c.skew
}

// DecodeExpiry returns the exp claim of token.
func (c *Codec) DecodeExpiry(token string) (time.Time, error) {
	claims, err := c.decode(token)
	if err != nil {
		return time.Time{}, err
	}
	return expiryOf(claims)
}

// IsExpired reports whether token is empty, undecodable, lacks an expiry, or
// expires at or before now plus the configured skew.
func (c *Codec) IsExpired(token string) bool {
	if token == "" {
		return true
	}
	exp, err := c.DecodeExpiry(token)
	if err != nil {
		return true
	}
	return !exp.After(c.clock.Now().Add(c.skew))
}

// ReadRoles returns the roles claim when it is an array of strings. Any other
// shape, including a malformed token, yields an empty slice.
func (c *Codec) ReadRoles(token string) []string {
	if token == "" {
		return []string{}
	}
	claims, err := c.decode(token)
	if err != nil {
		return []string{}
	}
	return rolesOf(claims)
}

// Claims decodes the fields used by the session view.
func (c *Codec) Claims(token string) (Claims, error) {
	claims, err := c.decode(token)
	if err != nil {
		return Claims{}, err
	}

	exp, err := expiryOf(claims)
	if err != nil {
		return Claims{}, err
	}

	out := Claims{
		ExpiresAt: exp,
		Roles:     rolesOf(claims),
	}
	out.Subject, _ = claims.GetSubject()
	out.Type, _ = claims["type"].(string)
	return out, nil
}

func (c *Codec) decode(token string) (jwt.MapClaims, error) {
	if token == "" {
		return nil, ErrMalformed
	}

	claims := jwt.MapClaims{}
	if _, _, err := c.parser.ParseUnverified(token, claims); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	return claims, nil
}

func expiryOf(claims jwt.MapClaims) (time.Time, error) {
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, errors.Join(ErrMalformed, err)
	}
	if exp == nil || exp.Time.Unix() == 0 {
		return time.Time{}, ErrMissingExpiry
	}
	return exp.Time, nil
}

func rolesOf(claims jwt.MapClaims) []string {
	raw, ok := claims[rolesClaim].([]interface{})
	if !ok {
		return []string{}
	}

	roles := make([]string, 0, len(raw))
	for _, v := range raw {
		role, ok := v.(string)
		if !ok {
			return []string{}
		}
		roles = append(roles, role)
	}
	return roles
}
