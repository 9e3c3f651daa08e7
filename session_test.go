package goAuthClient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goAuthClient/apiclient"
	"github.com/MrEthical07/goAuthClient/internal/idptest"
	"github.com/MrEthical07/goAuthClient/tokenstore"
)

const accessTTL = time.Minute

type sessionFixture struct {
	idp   *idptest.Server
	clock clockwork.FakeClock
	store *tokenstore.MemoryStore
}

func newFixture(t *testing.T, opts idptest.Options) *sessionFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	opts.Clock = clock
	opts.AccessTTL = accessTTL
	idp := idptest.NewServer(opts)
	t.Cleanup(idp.Close)
	idp.AddUser("alice", "wonderland", "admin")
	idp.AddUser("bob", "builder", "user")
	return &sessionFixture{idp: idp, clock: clock, store: tokenstore.NewMemoryStore()}
}

func (f *sessionFixture) session(t *testing.T, mutate func(*Config), configure ...func(*Builder)) *Session {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = f.idp.URL()
	if mutate != nil {
		mutate(&cfg)
	}

	log, _ := logtest.NewNullLogger()
	b := New().WithConfig(cfg).WithStore(f.store).WithClock(f.clock).WithLogger(log)
	for _, fn := range configure {
		fn(b)
	}
	s, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func bodyMode(cfg *Config) {
	cfg.RefreshMode = RefreshBody
}

func (f *sessionFixture) expireAccess() {
	f.clock.Advance(2 * accessTTL)
}

type me struct {
	Sub   string   `json:"sub"`
	Roles []string `json:"roles"`
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	_, err := New().Build()
	require.ErrorIs(t, err, ErrConfigInvalid)

	cfg := DefaultConfig()
	cfg.BaseURL = "api.example.com"
	_, err = New().WithConfig(cfg).Build()
	require.ErrorIs(t, err, ErrConfigInvalid)

	cfg.BaseURL = "https://api.example.com/"
	b := New().WithConfig(cfg)
	s, err := b.Build()
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, StateRestoring, s.State())

	_, err = b.Build()
	require.Error(t, err)
}

func TestLoginStoresCredentials(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode)

	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))

	view := s.View()
	require.True(t, view.IsAuthenticated)
	require.Equal(t, []string{"admin"}, view.Roles)
	require.Equal(t, "alice", view.Subject)
	require.Equal(t, StateAuthenticated, view.State)

	stored, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, s.AccessToken(), stored.AccessToken)
	require.NotEmpty(t, stored.RefreshToken)
	require.True(t, s.HasRefreshCredential())

	var out me
	_, err = s.API().Get(context.Background(), idptest.MePath, &out)
	require.NoError(t, err)
	require.Equal(t, "alice", out.Sub)

	require.EqualValues(t, 1, s.MetricsSnapshot().Counters[MetricLoginSuccess])
}

func TestLoginJSONEncoding(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, func(cfg *Config) {
		cfg.RefreshMode = RefreshBody
		cfg.LoginEncoding = EncodingJSON
	})

	require.NoError(t, s.Login(context.Background(), "bob", "builder"))
	require.Equal(t, []string{"user"}, s.View().Roles)
}

func TestLoginFailureSurfacesDetail(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode)
	s.Restore(context.Background())
	require.Equal(t, StateUnauthenticated, s.State())

	err := s.Login(context.Background(), "alice", "wrong")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	require.Equal(t, "Invalid credentials", authErr.Message)
	require.Equal(t, StateUnauthenticated, s.State())
	require.False(t, s.View().IsAuthenticated)

	err = s.Login(context.Background(), "", "")
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusUnprocessableEntity, authErr.StatusCode)
	require.Equal(t, "field required", authErr.Message)

	require.EqualValues(t, 2, s.MetricsSnapshot().Counters[MetricLoginFailure])
}

func TestLoginFailureFallsBackToGenericMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	s, err := New().WithConfig(cfg).Build()
	require.NoError(t, err)
	defer s.Close()

	err = s.Login(context.Background(), "alice", "wonderland")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, DefaultLoginFailureMessage, authErr.Message)
	require.Equal(t, http.StatusInternalServerError, authErr.StatusCode)
}

func TestLoginReplacesPreviousRefreshCredential(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	require.NoError(t, f.store.Save(context.Background(), tokenstore.Credentials{
		AccessToken:  "stale",
		RefreshToken: "someone-elses",
	}))

	s := f.session(t, bodyMode)
	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))

	stored, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, "someone-elses", stored.RefreshToken)
}

func TestRestoreFromPersistedRefreshCredential(t *testing.T) {
	f := newFixture(t, idptest.Options{})

	first := f.session(t, bodyMode)
	require.NoError(t, first.Login(context.Background(), "alice", "wonderland"))
	first.Close()

	f.expireAccess()

	second := f.session(t, bodyMode)
	view := second.Restore(context.Background())
	require.True(t, view.IsAuthenticated)
	require.Equal(t, StateAuthenticated, view.State)
	require.EqualValues(t, 1, f.idp.RefreshCalls())
	require.EqualValues(t, 1, second.MetricsSnapshot().Counters[MetricRestoreSuccess])
}

func TestRestoreCookieModeWithoutSessionStaysUnauthenticated(t *testing.T) {
	f := newFixture(t, idptest.Options{CookieRefresh: true})
	s := f.session(t, nil)

	view := s.Restore(context.Background())
	require.False(t, view.IsAuthenticated)
	require.Equal(t, StateUnauthenticated, view.State)
	require.EqualValues(t, 1, f.idp.RefreshCalls())
	require.EqualValues(t, 0, s.MetricsSnapshot().Counters[MetricForcedLogout])
	require.EqualValues(t, 1, s.MetricsSnapshot().Counters[MetricRestoreFailure])
}

func TestRestoreBodyModeWithoutCredentialSkipsNetwork(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode)

	view := s.Restore(context.Background())
	require.False(t, view.IsAuthenticated)
	require.EqualValues(t, 0, f.idp.RefreshCalls())
}

func TestRestoreValidAccessWithoutRefreshCredential(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	token := f.idp.IssueAccess("carol", []string{"user"}, accessTTL)
	require.NoError(t, f.store.Save(context.Background(), tokenstore.Credentials{AccessToken: token}))

	s := f.session(t, bodyMode)
	view := s.Restore(context.Background())
	require.True(t, view.IsAuthenticated)
	require.Equal(t, "carol", view.Subject)
	require.EqualValues(t, 0, f.idp.RefreshCalls())
}

func TestRestoreLoadFailureEndsUnauthenticated(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode, func(b *Builder) {
		b.WithStore(failingStore{})
	})

	view := s.Restore(context.Background())
	require.False(t, view.IsAuthenticated)
	require.Equal(t, StateUnauthenticated, view.State)
}

type failingStore struct{}

func (failingStore) Load(context.Context) (tokenstore.Credentials, error) {
	return tokenstore.Credentials{}, tokenstore.ErrStoreUnavailable
}
func (failingStore) Save(context.Context, tokenstore.Credentials) error { return nil }
func (failingStore) Clear(context.Context) error                        { return nil }

func TestRestoreOnAuthenticatedSessionKeepsItAuthenticated(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode)
	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))

	var (
		mu     sync.Mutex
		states []State
	)
	cancel := s.Subscribe(func(v View) {
		mu.Lock()
		states = append(states, v.State)
		mu.Unlock()
	})
	defer cancel()

	release := f.idp.GateRefresh()
	done := make(chan View, 1)
	go func() {
		done <- s.Restore(context.Background())
	}()
	require.Eventually(t, func() bool {
		return f.idp.RefreshCalls() == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.Equal(t, StateRefreshing, s.State())
	require.True(t, s.View().IsAuthenticated)
	release()

	view := <-done
	require.True(t, view.IsAuthenticated)
	require.Equal(t, StateAuthenticated, view.State)

	mu.Lock()
	defer mu.Unlock()
	require.NotContains(t, states, StateRestoring)
}

func TestLogoutBeforeRestoreRevokesStoredCredential(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	first := f.session(t, bodyMode)
	require.NoError(t, first.Login(context.Background(), "alice", "wonderland"))
	require.Equal(t, 1, f.idp.ActiveRefreshTokens())

	second := f.session(t, bodyMode)
	require.NoError(t, second.Logout(context.Background()))

	require.EqualValues(t, 0, f.idp.RefreshCalls())
	require.EqualValues(t, 1, f.idp.LogoutCalls())
	require.Equal(t, 0, f.idp.ActiveRefreshTokens())

	stored, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, stored.IsZero())
	require.Equal(t, StateUnauthenticated, second.State())
}

func TestCookieModeRefreshesThroughJar(t *testing.T) {
	f := newFixture(t, idptest.Options{CookieRefresh: true})
	s := f.session(t, nil)

	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))
	require.True(t, s.HasRefreshCredential())

	stored, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, stored.RefreshToken)

	f.expireAccess()
	require.False(t, s.View().IsAuthenticated)

	var out me
	_, err = s.API().Get(context.Background(), idptest.MePath, &out)
	require.NoError(t, err)
	require.Equal(t, "alice", out.Sub)
	require.EqualValues(t, 1, f.idp.RefreshCalls())
	require.True(t, s.View().IsAuthenticated)

	require.NoError(t, s.Logout(context.Background()))
	require.False(t, s.HasRefreshCredential())
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	const callers = 8

	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode)
	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))
	f.expireAccess()

	release := f.idp.GateRefresh()

	var wg sync.WaitGroup
	errs := make([]error, callers)
	subs := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out me
			_, errs[i] = s.API().Get(context.Background(), idptest.MePath, &out)
			subs[i] = out.Sub
		}(i)
	}

	require.Eventually(t, func() bool {
		return s.refreshWaiters.Load() == callers
	}, 5*time.Second, 5*time.Millisecond)
	release()
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "alice", subs[i])
	}
	require.EqualValues(t, 1, f.idp.RefreshCalls())

	snap := s.MetricsSnapshot()
	require.EqualValues(t, 1, snap.Counters[MetricRefreshSuccess])
	require.EqualValues(t, callers-1, snap.Counters[MetricRefreshShared])
	require.EqualValues(t, callers, snap.Counters[MetricRequestRetried])
}

func TestRefreshFailureEndsSession(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode)
	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))

	f.idp.RevokeRefresh()
	f.expireAccess()

	_, err := s.API().Get(context.Background(), idptest.MePath, nil)
	require.ErrorIs(t, err, ErrRefreshFailed)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusUnauthorized, authErr.StatusCode)

	require.False(t, s.View().IsAuthenticated)
	require.Equal(t, StateUnauthenticated, s.State())
	stored, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, stored.IsZero())
	require.EqualValues(t, 1, s.MetricsSnapshot().Counters[MetricForcedLogout])
}

func TestUnauthorizedWithoutRefreshCredentialLogsOutLocally(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	token := f.idp.IssueAccess("carol", nil, accessTTL)
	require.NoError(t, f.store.Save(context.Background(), tokenstore.Credentials{AccessToken: token}))

	s := f.session(t, func(cfg *Config) {
		cfg.RefreshMode = RefreshBody
		cfg.MissingRefreshPolicy = RefreshPolicyRequireCredential
	})
	require.True(t, s.Restore(context.Background()).IsAuthenticated)

	f.expireAccess()
	_, err := s.API().Get(context.Background(), idptest.MePath, nil)
	var statusErr *apiclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	require.ErrorIs(t, err, ErrNoRefreshCredential)

	require.EqualValues(t, 0, f.idp.RefreshCalls())
	require.Equal(t, StateUnauthenticated, s.State())
	require.Empty(t, s.AccessToken())
}

func TestRetryPreservesRequestBody(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode)
	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))
	f.expireAccess()

	var out map[string]string
	_, err := s.API().Post(context.Background(), idptest.EchoPath, map[string]string{"note": "hello"}, &out)
	require.NoError(t, err)
	require.Equal(t, "hello", out["note"])
	require.EqualValues(t, 2, f.idp.APICalls())
}

func TestRefreshKeepsOrRotatesRefreshCredential(t *testing.T) {
	for _, rotate := range []bool{false, true} {
		f := newFixture(t, idptest.Options{RotateRefresh: rotate})
		s := f.session(t, bodyMode)
		require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))

		before, err := f.store.Load(context.Background())
		require.NoError(t, err)

		_, err = s.Refresh(context.Background())
		require.NoError(t, err)

		after, err := f.store.Load(context.Background())
		require.NoError(t, err)
		require.NotEmpty(t, after.RefreshToken)
		if rotate {
			require.NotEqual(t, before.RefreshToken, after.RefreshToken)
		} else {
			require.Equal(t, before.RefreshToken, after.RefreshToken)
		}
		require.Equal(t, 1, f.idp.ActiveRefreshTokens())
	}
}

func TestLateRefreshIsSupersededByLogin(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode)
	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))
	f.expireAccess()

	release := f.idp.GateRefresh()
	done := make(chan error, 1)
	go func() {
		_, err := s.Refresh(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool {
		return f.idp.RefreshCalls() == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Login(context.Background(), "bob", "builder"))
	release()

	require.ErrorIs(t, <-done, ErrSessionSuperseded)
	require.Equal(t, "bob", s.View().Subject)
	require.True(t, s.View().IsAuthenticated)
	require.EqualValues(t, 1, s.MetricsSnapshot().Counters[MetricRefreshSuperseded])
}

func TestRequestRetriesWithCredentialFromNewerLogin(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode)
	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))
	f.expireAccess()

	release := f.idp.GateRefresh()
	type result struct {
		out me
		err error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		_, r.err = s.API().Get(context.Background(), idptest.MePath, &r.out)
		done <- r
	}()
	require.Eventually(t, func() bool {
		return f.idp.RefreshCalls() == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Login(context.Background(), "bob", "builder"))
	release()

	r := <-done
	require.NoError(t, r.err)
	require.Equal(t, "bob", r.out.Sub)
	require.Equal(t, "bob", s.View().Subject)
	require.EqualValues(t, 2, f.idp.APICalls())
	require.EqualValues(t, 1, s.MetricsSnapshot().Counters[MetricRefreshSuperseded])
	require.EqualValues(t, 1, s.MetricsSnapshot().Counters[MetricRequestRetried])
}

func TestCanceledCallerDoesNotAbortRefresh(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode)
	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))
	f.expireAccess()

	release := f.idp.GateRefresh()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Refresh(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return f.idp.RefreshCalls() == 1
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	release()
	require.Eventually(t, func() bool {
		return s.View().IsAuthenticated
	}, 5*time.Second, 5*time.Millisecond)
}

func TestLogoutClearsEvenWhenServerFails(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode)
	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))

	f.idp.FailLogout(true)
	require.NoError(t, s.Logout(context.Background()))

	require.EqualValues(t, 1, f.idp.LogoutCalls())
	require.False(t, s.View().IsAuthenticated)
	require.Equal(t, StateUnauthenticated, s.State())
	stored, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, stored.IsZero())

	snap := s.MetricsSnapshot()
	require.EqualValues(t, 1, snap.Counters[MetricLogout])
	require.EqualValues(t, 1, snap.Counters[MetricLogoutNotifyFailure])
}

func TestLogoutRevokesRefreshCredential(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode)
	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))
	require.Equal(t, 1, f.idp.ActiveRefreshTokens())

	require.NoError(t, s.Logout(context.Background()))
	require.Equal(t, 0, f.idp.ActiveRefreshTokens())
}

func TestSubscribeReceivesEveryChange(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode)

	var (
		mu    sync.Mutex
		views []View
	)
	cancel := s.Subscribe(func(v View) {
		mu.Lock()
		views = append(views, v)
		mu.Unlock()
	})

	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))
	require.NoError(t, s.Logout(context.Background()))
	cancel()
	require.NoError(t, s.Login(context.Background(), "bob", "builder"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, views, 2)
	require.True(t, views[0].IsAuthenticated)
	require.Equal(t, []string{"admin"}, views[0].Roles)
	require.False(t, views[1].IsAuthenticated)
}

func TestInvalidateClearsWithoutNetwork(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode)
	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))

	s.Invalidate(context.Background())
	require.Equal(t, StateUnauthenticated, s.State())
	require.EqualValues(t, 0, f.idp.LogoutCalls())
	require.EqualValues(t, 1, s.MetricsSnapshot().Counters[MetricForcedLogout])
}

func TestClosedSessionRejectsOperations(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	s := f.session(t, bodyMode)
	s.Close()
	s.Close()

	require.ErrorIs(t, s.Login(context.Background(), "alice", "wonderland"), ErrSessionClosed)
	_, err := s.Refresh(context.Background())
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestAuditEventsCarryNoSecrets(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	sink := NewChannelSink(32)
	s := f.session(t, func(cfg *Config) {
		cfg.RefreshMode = RefreshBody
		cfg.Audit.Enabled = true
		cfg.Audit.DropIfFull = false
	}, func(b *Builder) {
		b.WithAuditSink(sink)
	})

	require.Error(t, s.Login(context.Background(), "alice", "wrong"))
	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))
	stored, err := f.store.Load(context.Background())
	require.NoError(t, err)
	_, err = s.Refresh(context.Background())
	require.NoError(t, err)
	access := s.AccessToken()
	require.NoError(t, s.Logout(context.Background()))
	s.Close()

	var types []string
drain:
	for {
		select {
		case ev := <-sink.Events():
			types = append(types, ev.EventType)
			raw, err := json.Marshal(ev)
			require.NoError(t, err)
			for _, secret := range []string{"wonderland", access, stored.AccessToken, stored.RefreshToken} {
				require.False(t, strings.Contains(string(raw), secret), "audit event %s leaks a secret", ev.EventType)
			}
		default:
			break drain
		}
	}

	require.Equal(t, []string{AuditLoginFailure, AuditLoginSuccess, AuditRefreshSuccess, AuditLogout}, types)
}

func TestLogrusFieldsOnSwallowedFailures(t *testing.T) {
	f := newFixture(t, idptest.Options{})
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	s := f.session(t, bodyMode, func(b *Builder) {
		b.WithLogger(log)
	})
	require.NoError(t, s.Login(context.Background(), "alice", "wonderland"))

	f.idp.FailLogout(true)
	require.NoError(t, s.Logout(context.Background()))

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "logout notification failed" {
			found = true
			require.Equal(t, logrus.WarnLevel, entry.Level)
			require.Equal(t, "session", entry.Data["component"])
			require.NotNil(t, entry.Data[logrus.ErrorKey])
		}
	}
	require.True(t, found)
}
