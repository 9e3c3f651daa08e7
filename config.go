package goAuthClient

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/MrEthical07/goAuthClient/apiclient"
	"github.com/MrEthical07/goAuthClient/jwt"
)

// Config holds everything a Session needs to talk to the identity endpoint
// and the API.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	// BaseURL is the API root, either an absolute http(s) URL or a
	// root-relative path such as /api/v1. Trailing slashes are stripped.
	BaseURL string
	// Origin is prepended to a root-relative BaseURL.
	Origin               string
	Endpoints            EndpointsConfig
	RefreshMode          RefreshMode
	LoginEncoding        LoginEncoding
	MissingRefreshPolicy RefreshPolicy
	ExpirySkew           time.Duration
	RequestTimeout       time.Duration
	// RequestedWith is sent as X-Requested-With on identity calls. The
	// endpoint uses it as a CSRF check for cookie-borne refresh.
	RequestedWith string
	Metrics       MetricsConfig
	Audit         AuditConfig
}

/*
====================================
ENDPOINTS
====================================
*/

// EndpointsConfig holds identity endpoint paths relative to the base URL.
type EndpointsConfig struct {
	Login   string
	Refresh string
	Logout  string
}

// RefreshMode selects where the refresh credential travels.
type RefreshMode int

const (
	// RefreshCookie keeps the refresh credential in an HttpOnly cookie set by
	// the endpoint. The client never sees it.
	RefreshCookie RefreshMode = iota
	// RefreshBody stores the refresh credential and sends it as
	// {"refresh_token": ...}.
	RefreshBody
)

func (m RefreshMode) String() string {
	switch m {
	case RefreshCookie:
		return "cookie"
	case RefreshBody:
		return "body"
	default:
		return "unknown"
	}
}

// LoginEncoding selects the login request body format.
type LoginEncoding int

const (
	// EncodingForm posts username and password as a URL-encoded form.
	EncodingForm LoginEncoding = iota
	// EncodingJSON posts {"username": ..., "password": ...}.
	EncodingJSON
)

func (e LoginEncoding) String() string {
	switch e {
	case EncodingForm:
		return "form"
	case EncodingJSON:
		return "json"
	default:
		return "unknown"
	}
}

// RefreshPolicy controls what a 401 does when no refresh credential is known.
type RefreshPolicy int

const (
	// RefreshPolicyAuto attempts in cookie mode and requires a credential in
	// body mode.
	RefreshPolicyAuto RefreshPolicy = iota
	// RefreshPolicyAttempt always calls the refresh endpoint.
	RefreshPolicyAttempt
	// RefreshPolicyRequireCredential logs out locally without a network call.
	RefreshPolicyRequireCredential
)

func (p RefreshPolicy) String() string {
	switch p {
	case RefreshPolicyAuto:
		return "auto"
	case RefreshPolicyAttempt:
		return "attempt"
	case RefreshPolicyRequireCredential:
		return "require_credential"
	default:
		return "unknown"
	}
}

/*
====================================
METRICS / AUDIT
====================================
*/

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a Config with every optional field populated. BaseURL
// is left empty and must be set.
func DefaultConfig() Config {
	return Config{
		Endpoints: EndpointsConfig{
			Login:   "/auth/login",
			Refresh: "/auth/refresh",
			Logout:  "/auth/logout",
		},
		RefreshMode:          RefreshCookie,
		LoginEncoding:        EncodingForm,
		MissingRefreshPolicy: RefreshPolicyAuto,
		ExpirySkew:           jwt.DefaultSkew,
		RequestTimeout:       apiclient.DefaultTimeout,
		RequestedWith:        "XMLHttpRequest",
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Audit: AuditConfig{
			BufferSize: 64,
			DropIfFull: true,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

var absoluteURLPattern = regexp.MustCompile(`(?i)^https?://`)

// Validate checks c and reports the first problem wrapped in ErrConfigInvalid.
func (c *Config) Validate() error {
	base := normalizeBaseURL(c.BaseURL)
	if base == "" {
		return fmt.Errorf("%w: BaseURL is required", ErrConfigInvalid)
	}

	switch {
	case absoluteURLPattern.MatchString(base):
		if err := checkAbsolute(base); err != nil {
			return fmt.Errorf("%w: BaseURL %q: %v", ErrConfigInvalid, c.BaseURL, err)
		}
	case strings.HasPrefix(base, "/"):
		if c.Origin == "" {
			return fmt.Errorf("%w: root-relative BaseURL %q requires Origin", ErrConfigInvalid, c.BaseURL)
		}
		if err := checkAbsolute(normalizeBaseURL(c.Origin)); err != nil || !absoluteURLPattern.MatchString(c.Origin) {
			return fmt.Errorf("%w: Origin %q must be an absolute http(s) URL", ErrConfigInvalid, c.Origin)
		}
	default:
		return fmt.Errorf(`%w: BaseURL must start with "/" or "http(s)://", got %q`, ErrConfigInvalid, c.BaseURL)
	}

	for _, ep := range []struct{ name, path string }{
		{"Login", c.Endpoints.Login},
		{"Refresh", c.Endpoints.Refresh},
		{"Logout", c.Endpoints.Logout},
	} {
		if !strings.HasPrefix(ep.path, "/") {
			return fmt.Errorf("%w: Endpoints.%s must start with \"/\"", ErrConfigInvalid, ep.name)
		}
	}

	if c.RefreshMode != RefreshCookie && c.RefreshMode != RefreshBody {
		return fmt.Errorf("%w: unknown RefreshMode %d", ErrConfigInvalid, c.RefreshMode)
	}
	if c.LoginEncoding != EncodingForm && c.LoginEncoding != EncodingJSON {
		return fmt.Errorf("%w: unknown LoginEncoding %d", ErrConfigInvalid, c.LoginEncoding)
	}
	if c.MissingRefreshPolicy < RefreshPolicyAuto || c.MissingRefreshPolicy > RefreshPolicyRequireCredential {
		return fmt.Errorf("%w: unknown MissingRefreshPolicy %d", ErrConfigInvalid, c.MissingRefreshPolicy)
	}
	if c.ExpirySkew < 0 {
		return fmt.Errorf("%w: ExpirySkew must be >= 0", ErrConfigInvalid)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: RequestTimeout must be > 0", ErrConfigInvalid)
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return fmt.Errorf("%w: Audit BufferSize must be > 0", ErrConfigInvalid)
	}

	return nil
}

// ResolvedBaseURL returns the absolute API root: BaseURL without trailing
// slashes, prefixed by Origin when it is root-relative.
func (c Config) ResolvedBaseURL() string {
	base := normalizeBaseURL(c.BaseURL)
	if strings.HasPrefix(base, "/") {
		return normalizeBaseURL(c.Origin) + base
	}
	return base
}

func (c Config) apiPolicy() apiclient.Policy {
	switch c.MissingRefreshPolicy {
	case RefreshPolicyAttempt:
		return apiclient.PolicyAttempt
	case RefreshPolicyRequireCredential:
		return apiclient.PolicyRequireCredential
	}
	if c.RefreshMode == RefreshBody {
		return apiclient.PolicyRequireCredential
	}
	return apiclient.PolicyAttempt
}

func normalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

func checkAbsolute(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
