package goAuthClient

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"

	"github.com/MrEthical07/goAuthClient/apiclient"
	"github.com/MrEthical07/goAuthClient/tokenstore"
)

// tokenResponse is the body returned by the login and refresh endpoints.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// identityClient talks to the login, refresh and logout endpoints. It never
// sends an Authorization header and owns the cookie jar that carries a
// cookie-borne refresh credential.
type identityClient struct {
	rc         *resty.Client
	jar        *resettableJar
	cfg        Config
	refreshURL *url.URL
}

func newIdentityClient(cfg Config, transport http.RoundTripper, log logrus.FieldLogger) (*identityClient, error) {
	jar, err := newResettableJar()
	if err != nil {
		return nil, err
	}

	base := cfg.ResolvedBaseURL()
	refreshURL, err := url.Parse(base + cfg.Endpoints.Refresh)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout: cfg.RequestTimeout,
		Jar:     jar,
	}
	if transport != nil {
		httpClient.Transport = transport
	}

	rc := resty.NewWithClient(httpClient)
	rc.SetBaseURL(base)
	rc.SetHeader("Accept", "application/json")
	if cfg.RequestedWith != "" {
		rc.SetHeader("X-Requested-With", cfg.RequestedWith)
	}
	rc.SetLogger(log.WithField("component", "identity"))

	return &identityClient{
		rc:         rc,
		jar:        jar,
		cfg:        cfg,
		refreshURL: refreshURL,
	}, nil
}

func (c *identityClient) login(ctx context.Context, identifier, secret string) (tokenstore.Credentials, error) {
	var out tokenResponse
	req := c.rc.R().SetContext(ctx).SetResult(&out)

	switch c.cfg.LoginEncoding {
	case EncodingJSON:
		req.SetBody(map[string]string{
			"username": identifier,
			"password": secret,
		})
	default:
		req.SetFormData(map[string]string{
			"username": identifier,
			"password": secret,
		})
	}

	resp, err := req.Post(c.cfg.Endpoints.Login)
	if err != nil {
		return tokenstore.Credentials{}, &AuthError{Message: err.Error(), Err: err}
	}
	if resp.IsError() {
		return tokenstore.Credentials{}, authErrorFrom(resp, DefaultLoginFailureMessage)
	}
	return tokenstore.Credentials{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}, nil
}

func (c *identityClient) refresh(ctx context.Context, refreshToken string) (tokenstore.Credentials, error) {
	var out tokenResponse
	req := c.rc.R().SetContext(ctx).SetResult(&out)
	if c.cfg.RefreshMode == RefreshBody {
		req.SetBody(map[string]string{"refresh_token": refreshToken})
	}

	resp, err := req.Post(c.cfg.Endpoints.Refresh)
	if err != nil {
		return tokenstore.Credentials{}, err
	}
	if resp.IsError() {
		return tokenstore.Credentials{}, authErrorFrom(resp, "refresh rejected")
	}
	return tokenstore.Credentials{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}, nil
}

func (c *identityClient) logout(ctx context.Context, refreshToken string) error {
	req := c.rc.R().SetContext(ctx)
	if c.cfg.RefreshMode == RefreshBody && refreshToken != "" {
		req.SetBody(map[string]string{"refresh_token": refreshToken})
	}

	resp, err := req.Post(c.cfg.Endpoints.Logout)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return authErrorFrom(resp, "logout rejected")
	}
	return nil
}

func (c *identityClient) hasRefreshCookie() bool {
	return len(c.jar.Cookies(c.refreshURL)) > 0
}

func (c *identityClient) forgetCookies() {
	c.jar.Reset()
}

func authErrorFrom(resp *resty.Response, fallback string) *AuthError {
	statusErr := &apiclient.StatusError{
		StatusCode: resp.StatusCode(),
		Detail:     apiclient.ErrorDetail(resp.Body()),
		Body:       resp.Body(),
	}
	msg := statusErr.Detail
	if msg == "" {
		msg = fallback
	}
	return &AuthError{
		StatusCode: statusErr.StatusCode,
		Message:    msg,
		Err:        statusErr,
	}
}

// resettableJar is a cookie jar that can be emptied while requests are in
// flight.
type resettableJar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

func newResettableJar() (*resettableJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &resettableJar{jar: jar}, nil
}

func (j *resettableJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.jar.SetCookies(u, cookies)
}

func (j *resettableJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

func (j *resettableJar) Reset() {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return
	}
	j.mu.Lock()
	j.jar = jar
	j.mu.Unlock()
}
