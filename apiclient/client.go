package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single API request attempt.
const DefaultTimeout = 15 * time.Second

// CredentialSource supplies the access credential attached to requests.
type CredentialSource interface {
	// AccessToken returns the current credential, or "" when there is none.
	AccessToken() string
}

// Refresher obtains a new access credential.
//
// Refresh is expected to be single-flight and to clear the session itself when
// the refresh is rejected. A refresh overtaken by a newer login or logout
// returns an error wrapping ErrCredentialChanged.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
	HasRefreshCredential() bool
	// Invalidate performs a local logout without contacting the server.
	Invalidate(ctx context.Context)
}

// Policy controls whether a refresh is attempted when no refresh credential is
// known to the client.
type Policy int

const (
	// PolicyAttempt always tries a refresh on 401. The refresh credential may be
	// held where the client cannot see it, such as an HttpOnly cookie.
	PolicyAttempt Policy = iota
	// PolicyRequireCredential fails the request and logs out locally when no
	// refresh credential is stored.
	PolicyRequireCredential
)

func (p Policy) String() string {
	switch p {
	case PolicyAttempt:
		return "attempt"
	case PolicyRequireCredential:
		return "require_credential"
	default:
		return "unknown"
	}
}

// Options configures a [Client].
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
	Policy    Policy
	Logger    logrus.FieldLogger
	// OnRetry, when set, is called each time a request is re-issued after a
	// successful refresh.
	OnRetry func()
}

// Client issues authenticated API requests.
type Client struct {
	rc        *resty.Client
	source    CredentialSource
	refresher Refresher
	policy    Policy
	log       logrus.FieldLogger
	onRetry   func()
}

// New returns a Client reading credentials from source.
func New(source CredentialSource, refresher Refresher, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "apiclient")

	httpClient := &http.Client{Timeout: timeout}
	if opts.Transport != nil {
		httpClient.Transport = opts.Transport
	}

	rc := resty.NewWithClient(httpClient)
	rc.SetBaseURL(opts.BaseURL)
	rc.SetHeader("Accept", "application/json")
	rc.SetLogger(log)
	rc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if token := source.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		} else {
			req.Header.Del("Authorization")
		}
		return nil
	})

	return &Client{
		rc:        rc,
		source:    source,
		refresher: refresher,
		policy:    opts.Policy,
		log:       log,
		onRetry:   opts.OnRetry,
	}
}

// Resty exposes the underlying client for header and transport customization.
func (c *Client) Resty() *resty.Client {
	return c.rc
}

// R starts a request bound to ctx.
func (c *Client) R(ctx context.Context) *resty.Request {
	return c.rc.R().SetContext(ctx)
}

// Execute issues req and applies the refresh-and-retry policy. A response with
// a status of 400 or above is returned together with a *StatusError. Transport
// and refresh errors are returned unmodified.
//
// A 401 with no refresh credential under PolicyRequireCredential returns an
// error matching both ErrNoRefreshCredential and the *StatusError. When the
// refresh was overtaken by a newer login, the request is retried once with
// the new credential.
func (c *Client) Execute(req *resty.Request, method, url string) (*resty.Response, error) {
	retried := false
	for {
		resp, err := req.Execute(method, url)

		switch Classify(resp, err, retried) {
		case DecisionPass:
			return resp, nil

		case DecisionFail:
			if err != nil {
				return resp, err
			}
			return resp, newStatusError(resp)

		case DecisionRetryAfterRefresh:
			retried = true
			ctx := req.Context()

			if c.policy == PolicyRequireCredential && !c.refresher.HasRefreshCredential() {
				c.log.WithField("status", resp.StatusCode()).Debug("no refresh credential, ending session")
				c.refresher.Invalidate(ctx)
				return resp, fmt.Errorf("%w: %w", ErrNoRefreshCredential, newStatusError(resp))
			}

			if _, err := c.refresher.Refresh(ctx); err != nil {
				if !errors.Is(err, ErrCredentialChanged) {
					c.log.WithError(err).Debug("refresh after 401 failed")
					return resp, err
				}
				if c.source.AccessToken() == "" {
					return resp, newStatusError(resp)
				}
				c.log.Debug("credential replaced during refresh, retrying with current one")
			}
			if c.onRetry != nil {
				c.onRetry()
			}
		}
	}
}

// Do issues method against path with an optional JSON body, decoding a
// successful response into result when it is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, result interface{}) (*resty.Response, error) {
	req := c.R(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	return c.Execute(req, method, path)
}

func (c *Client) Get(ctx context.Context, path string, result interface{}) (*resty.Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) Post(ctx context.Context, path string, body, result interface{}) (*resty.Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, result)
}

func (c *Client) Put(ctx context.Context, path string, body, result interface{}) (*resty.Response, error) {
	return c.Do(ctx, http.MethodPut, path, body, result)
}

func (c *Client) Delete(ctx context.Context, path string, result interface{}) (*resty.Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, result)
}
