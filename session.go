package goAuthClient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/goAuthClient/apiclient"
	"github.com/MrEthical07/goAuthClient/internal/flows"
	"github.com/MrEthical07/goAuthClient/jwt"
	"github.com/MrEthical07/goAuthClient/tokenstore"
)

const refreshFlightKey = "refresh"

// Session is the client-side authentication session. It owns the current
// credential pair, performs login, logout and silent restore, and runs the
// single-flight refresh used by its API client.
//
// Session methods are safe for concurrent use. Build one per logical user
// with [Builder.Build].
type Session struct {
	cfg      Config
	store    tokenstore.Store
	codec    *jwt.Codec
	clock    clockwork.Clock
	log      logrus.FieldLogger
	identity *identityClient
	api      *apiclient.Client
	flows    flows.Service
	metrics  *Metrics
	audit    *auditDispatcher

	mu         sync.RWMutex
	creds      tokenstore.Credentials
	state      State
	generation uint64
	closed     bool

	refreshGroup   singleflight.Group
	refreshWaiters atomic.Int64

	notifyMu sync.Mutex
	subMu    sync.Mutex
	subs     map[uint64]func(View)
	nextSub  uint64
}

var (
	_ apiclient.CredentialSource = (*Session)(nil)
	_ apiclient.Refresher        = (*Session)(nil)
)

func (s *Session) flowDeps() flows.Deps {
	return flows.Deps{
		Login: flows.LoginDeps{
			Submit:       s.identity.login,
			ValidAccess:  s.validAccess,
			Commit:       s.commitLogin,
			InvalidToken: ErrTokenInvalid,
		},
		Refresh: flows.RefreshDeps{
			Exchange:     s.identity.refresh,
			ValidAccess:  s.validAccess,
			Commit:       s.commitRefresh,
			Discard:      s.discardAt,
			Superseded:   ErrSessionSuperseded,
			InvalidToken: ErrTokenInvalid,
			Warn:         s.log.Warnf,
		},
		Restore: flows.RestoreDeps{
			Load:                     s.store.Load,
			Adopt:                    s.adopt,
			HasRefreshCredential:     s.HasRefreshCredential,
			RequireRefreshCredential: s.cfg.apiPolicy() == apiclient.PolicyRequireCredential,
			ValidAccess:              s.validAccess,
			Refresh:                  s.Refresh,
			Discard:                  s.discardAt,
		},
		Logout: flows.LogoutDeps{
			Notify:  s.identity.logout,
			Discard: s.discard,
		},
	}
}

// API returns the authenticated API client bound to this session.
func (s *Session) API() *apiclient.Client {
	return s.api
}

// AccessToken returns the current access credential, or "" when there is
// none. The credential is returned even when it has expired; the API answers
// 401 and the client refreshes.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken
}

// HasRefreshCredential reports whether a refresh credential is known. In
// cookie mode it checks the cookie jar for a cookie scoped to the refresh
// endpoint.
func (s *Session) HasRefreshCredential() bool {
	if s.cfg.RefreshMode == RefreshCookie {
		return s.identity.hasRefreshCookie()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.RefreshToken != ""
}

// Restore attempts silent restoration from the store and any cookie-held
// refresh credential. It never returns an error: every failure leaves the
// session unauthenticated with the store cleared. The resulting view is
// returned for convenience.
func (s *Session) Restore(ctx context.Context) View {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.View()
	}
	gen := s.generation
	if s.state == StateUnauthenticated {
		s.state = StateRestoring
	}
	s.mu.Unlock()

	res := s.flows.Restore(ctx, gen)

	s.mu.Lock()
	if s.state == StateRestoring {
		if res.Authenticated {
			s.state = StateAuthenticated
		} else {
			s.state = StateUnauthenticated
		}
	}
	s.mu.Unlock()
	s.notify()

	ev := newAuditEvent(s.clock.Now(), AuditRestore, res.Authenticated, res.Err)
	ev.Metadata = map[string]string{"networked": fmt.Sprint(res.Networked)}
	if res.Authenticated {
		s.metrics.Inc(MetricRestoreSuccess)
		ev.Subject = s.View().Subject
		s.log.WithField("state", StateAuthenticated).Debug("session restored")
	} else {
		s.metrics.Inc(MetricRestoreFailure)
		s.log.WithError(res.Err).WithField("failure", res.Failure).Debug("no session to restore")
	}
	s.emitAudit(ctx, ev)

	return s.View()
}

// Login submits identifier and secret to the login endpoint. On success the
// returned credentials become current. On rejection the error is an
// *AuthError carrying the endpoint's detail and the session is left as it
// was.
func (s *Session) Login(ctx context.Context, identifier, secret string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	res := s.flows.Login(ctx, identifier, secret)
	if res.Failure != flows.LoginFailureNone {
		s.metrics.Inc(MetricLoginFailure)
		s.emitAudit(ctx, newAuditEvent(s.clock.Now(), AuditLoginFailure, false, res.Err))
		s.log.WithError(res.Err).Debug("login failed")
		return res.Err
	}

	s.metrics.Inc(MetricLoginSuccess)
	ev := newAuditEvent(s.clock.Now(), AuditLoginSuccess, true, nil)
	ev.Subject = s.View().Subject
	s.emitAudit(ctx, ev)
	s.log.WithField("subject", ev.Subject).Info("logged in")
	return nil
}

// Logout notifies the logout endpoint on a best-effort basis and always
// clears the local session. Only a failure to clear the store is returned.
//
// Before the first Restore the stored credentials are read directly, so a
// persisted session can be revoked without refreshing it first.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.RLock()
	current := s.creds
	unrestored := s.state == StateRestoring
	s.mu.RUnlock()

	if unrestored && current.IsZero() {
		stored, err := s.store.Load(ctx)
		if err != nil {
			s.log.WithError(err).Warn("reading stored credentials for logout failed")
		} else {
			current = stored
		}
	}

	res := s.flows.Logout(ctx, current)
	if res.NotifyErr != nil {
		s.metrics.Inc(MetricLogoutNotifyFailure)
		s.log.WithError(res.NotifyErr).Warn("logout notification failed")
	}

	s.metrics.Inc(MetricLogout)
	s.emitAudit(ctx, newAuditEvent(s.clock.Now(), AuditLogout, res.Err == nil, res.Err))
	return res.Err
}

// Refresh obtains a new access credential. Concurrent callers share one
// network call and observe the same result. The call itself is not canceled
// when ctx is; a caller whose ctx ends stops waiting and gets ctx.Err().
//
// A rejected refresh clears the session and returns an error wrapping
// ErrRefreshFailed. A refresh overtaken by Login or Logout returns
// ErrSessionSuperseded and leaves the newer session in place.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	if s.isClosed() {
		return "", ErrSessionClosed
	}

	detached := context.WithoutCancel(ctx)
	leader := false
	ch := s.refreshGroup.DoChan(refreshFlightKey, func() (interface{}, error) {
		leader = true
		return s.runRefresh(detached)
	})
	s.refreshWaiters.Add(1)
	defer s.refreshWaiters.Add(-1)

	select {
	case res := <-ch:
		if res.Shared && !leader {
			s.metrics.Inc(MetricRefreshShared)
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) runRefresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	in := flows.RefreshInput{Current: s.creds, Generation: s.generation}
	if s.state == StateAuthenticated {
		s.state = StateRefreshing
	}
	s.mu.Unlock()

	start := s.clock.Now()
	res := s.flows.Refresh(ctx, in)
	s.metrics.Observe(MetricRefreshLatency, s.clock.Since(start))

	switch res.Failure {
	case flows.RefreshFailureNone:
		s.metrics.Inc(MetricRefreshSuccess)
		ev := newAuditEvent(s.clock.Now(), AuditRefreshSuccess, true, nil)
		ev.Subject = s.View().Subject
		s.emitAudit(ctx, ev)
		return res.Credentials.AccessToken, nil

	case flows.RefreshFailureSuperseded:
		s.metrics.Inc(MetricRefreshSuperseded)
		s.log.Debug("refresh result discarded, session changed while in flight")
		return "", ErrSessionSuperseded
	}

	s.metrics.Inc(MetricRefreshFailure)
	s.emitAudit(ctx, newAuditEvent(s.clock.Now(), AuditRefreshFailure, false, res.Err))
	if res.Discarded && in.Current.AccessToken != "" {
		s.metrics.Inc(MetricForcedLogout)
		s.emitAudit(ctx, newAuditEvent(s.clock.Now(), AuditForcedLogout, true, nil))
	}
	s.log.WithError(res.Err).Info("refresh failed, session cleared")
	return "", fmt.Errorf("%w: %w", ErrRefreshFailed, res.Err)
}

// Invalidate performs a local logout without contacting the server.
func (s *Session) Invalidate(ctx context.Context) {
	if err := s.discard(ctx); err != nil {
		s.log.WithError(err).Warn("clearing credentials failed")
	}
	s.metrics.Inc(MetricForcedLogout)
	s.emitAudit(ctx, newAuditEvent(s.clock.Now(), AuditForcedLogout, true, nil))
}

// MetricsSnapshot returns a point-in-time copy of the session counters.
func (s *Session) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// Close stops the audit dispatcher and rejects further Login and Refresh
// calls. The stored credentials are left in place for the next Restore.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.audit.Close()

	s.subMu.Lock()
	s.subs = map[uint64]func(View){}
	s.subMu.Unlock()
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) validAccess(token string) bool {
	return !s.codec.IsExpired(token)
}

// commitLogin replaces the whole session, including any refresh credential
// left by a previous user.
func (s *Session) commitLogin(ctx context.Context, creds tokenstore.Credentials) error {
	s.mu.Lock()
	if err := s.store.Clear(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.store.Save(ctx, creds); err != nil {
		s.mu.Unlock()
		return err
	}
	s.creds = creds
	s.generation++
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.notify()
	return nil
}

// commitRefresh installs a refreshed pair if the session is still the one the
// refresh started from. A response without a refresh credential keeps the
// current one; a new one replaces it.
func (s *Session) commitRefresh(ctx context.Context, generation uint64, creds tokenstore.Credentials) error {
	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return ErrSessionSuperseded
	}
	if err := s.store.Save(ctx, creds); err != nil {
		s.mu.Unlock()
		return err
	}
	s.creds.AccessToken = creds.AccessToken
	if creds.RefreshToken != "" {
		s.creds.RefreshToken = creds.RefreshToken
	}
	s.generation++
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Session) adopt(generation uint64, creds tokenstore.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation == s.generation {
		s.creds = creds
	}
}

func (s *Session) discard(ctx context.Context) error {
	return s.clear(ctx, 0, false)
}

func (s *Session) discardAt(ctx context.Context, generation uint64) error {
	return s.clear(ctx, generation, true)
}

func (s *Session) clear(ctx context.Context, generation uint64, checkGeneration bool) error {
	s.mu.Lock()
	if checkGeneration && generation != s.generation {
		s.mu.Unlock()
		return nil
	}
	s.creds = tokenstore.Credentials{}
	s.generation++
	s.state = StateUnauthenticated
	err := s.store.Clear(ctx)
	s.mu.Unlock()

	s.identity.forgetCookies()
	s.notify()

	if err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

func (s *Session) emitAudit(ctx context.Context, ev AuditEvent) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, ev)
}
