package idptest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
)

const (
	LoginPath   = "/auth/login"
	RefreshPath = "/auth/refresh"
	LogoutPath  = "/auth/logout"
	MePath      = "/me"
	EchoPath    = "/echo"

	refreshCookie = "refresh_token"
)

// Options configures a Server.
type Options struct {
	// CookieRefresh issues the refresh credential as an HttpOnly cookie
	// scoped to /auth instead of returning it in the body.
	CookieRefresh bool
	// RotateRefresh replaces the refresh credential on every refresh.
	RotateRefresh bool
	AccessTTL     time.Duration
	Clock         clockwork.Clock
}

type user struct {
	password string
	roles    []string
}

// Server is a fake identity provider. All methods are safe for concurrent use.
type Server struct {
	srv   *httptest.Server
	opts  Options
	key   []byte
	clock clockwork.Clock

	mu            sync.Mutex
	users         map[string]user
	refreshTokens map[string]string
	refreshGate   chan struct{}
	releases      []func()
	failRefresh   bool
	failLogout    bool

	refreshCalls atomic.Int64
	logoutCalls  atomic.Int64
	apiCalls     atomic.Int64
}

// NewServer starts a Server. Close it when done.
func NewServer(opts Options) *Server {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Server{
		opts:          opts,
		key:           []byte(uuid.NewString()),
		clock:         clock,
		users:         map[string]user{},
		refreshTokens: map[string]string{},
	}

	router := httprouter.New()
	router.POST(LoginPath, s.handleLogin)
	router.POST(RefreshPath, s.handleRefresh)
	router.POST(LogoutPath, s.handleLogout)
	router.GET(MePath, s.authenticated(s.handleMe))
	router.POST(EchoPath, s.authenticated(s.handleEcho))

	s.srv = httptest.NewServer(router)
	return s
}

func (s *Server) URL() string {
	return s.srv.URL
}

// Close releases any gated refresh and stops the server.
func (s *Server) Close() {
	s.mu.Lock()
	releases := s.releases
	s.releases = nil
	s.mu.Unlock()
	for _, release := range releases {
		release()
	}
	s.srv.Close()
}

// AddUser registers a login.
func (s *Server) AddUser(username, password string, roles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = user{password: password, roles: roles}
}

// IssueAccess signs an access credential for subject that expires ttl from
// the server clock.
func (s *Server) IssueAccess(subject string, roles []string, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"sub":  subject,
		"type": "access",
		"jti":  uuid.NewString(),
		"exp":  s.clock.Now().Add(ttl).Unix(),
	}
	if roles != nil {
		claims["roles"] = roles
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		panic(err)
	}
	return signed
}

// GateRefresh holds every refresh request until the returned release
// function is called.
func (s *Server) GateRefresh() (release func()) {
	gate := make(chan struct{})
	var once sync.Once
	release = func() {
		once.Do(func() {
			s.mu.Lock()
			if s.refreshGate == gate {
				s.refreshGate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}

	s.mu.Lock()
	s.refreshGate = gate
	s.releases = append(s.releases, release)
	s.mu.Unlock()
	return release
}

// RevokeRefresh forgets every issued refresh credential.
func (s *Server) RevokeRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = map[string]string{}
}

// FailRefresh makes the refresh endpoint answer 500.
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

// FailLogout makes the logout endpoint answer 500.
func (s *Server) FailLogout(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLogout = fail
}

func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }
func (s *Server) LogoutCalls() int64  { return s.logoutCalls.Load() }
func (s *Server) APICalls() int64     { return s.apiCalls.Load() }

// ActiveRefreshTokens reports how many refresh credentials are valid.
func (s *Server) ActiveRefreshTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refreshTokens)
}

func (s *Server) handleLogin(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var username, password string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeDetail(rw, http.StatusBadRequest, "Malformed body")
			return
		}
		username, password = body.Username, body.Password
	} else {
		if err := r.ParseForm(); err != nil {
			writeDetail(rw, http.StatusBadRequest, "Malformed body")
			return
		}
		username, password = r.PostForm.Get("username"), r.PostForm.Get("password")
	}

	if username == "" || password == "" {
		writeJSON(rw, http.StatusUnprocessableEntity, map[string]interface{}{
			"detail": []map[string]interface{}{
				{"loc": []string{"body", "username"}, "msg": "field required"},
			},
		})
		return
	}

	s.mu.Lock()
	u, ok := s.users[username]
	s.mu.Unlock()
	if !ok || u.password != password {
		writeDetail(rw, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	s.issuePair(rw, username, u.roles)
}

func (s *Server) handleRefresh(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	gate := s.refreshGate
	fail := s.failRefresh
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if fail {
		writeDetail(rw, http.StatusInternalServerError, "Refresh unavailable")
		return
	}

	if s.opts.CookieRefresh && r.Header.Get("X-Requested-With") == "" {
		writeDetail(rw, http.StatusForbidden, "Missing X-Requested-With")
		return
	}

	token := s.presentedRefresh(r)
	s.mu.Lock()
	username, ok := s.refreshTokens[token]
	u := s.users[username]
	if ok && s.opts.RotateRefresh {
		delete(s.refreshTokens, token)
	}
	s.mu.Unlock()
	if token == "" || !ok {
		writeDetail(rw, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	if s.opts.RotateRefresh {
		s.issuePair(rw, username, u.roles)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]string{
		"access_token": s.IssueAccess(username, u.roles, s.opts.AccessTTL),
		"token_type":   "bearer",
	})
}

func (s *Server) handleLogout(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.logoutCalls.Add(1)

	s.mu.Lock()
	fail := s.failLogout
	if token := s.presentedRefresh(r); token != "" {
		delete(s.refreshTokens, token)
	}
	s.mu.Unlock()

	if fail {
		writeDetail(rw, http.StatusInternalServerError, "Logout unavailable")
		return
	}
	if s.opts.CookieRefresh {
		http.SetCookie(rw, &http.Cookie{Name: refreshCookie, Value: "", Path: "/auth", MaxAge: -1, HttpOnly: true})
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(rw http.ResponseWriter, r *http.Request, _ httprouter.Params, claims jwt.MapClaims) {
	writeJSON(rw, http.StatusOK, map[string]interface{}{
		"sub":   claims["sub"],
		"roles": claims["roles"],
	})
}

func (s *Server) handleEcho(rw http.ResponseWriter, r *http.Request, _ httprouter.Params, _ jwt.MapClaims) {
	var body interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(rw, http.StatusBadRequest, "Malformed body")
		return
	}
	writeJSON(rw, http.StatusOK, body)
}

type claimsHandler func(http.ResponseWriter, *http.Request, httprouter.Params, jwt.MapClaims)

func (s *Server) authenticated(next claimsHandler) httprouter.Handle {
	return func(rw http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s.apiCalls.Add(1)

		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeDetail(rw, http.StatusUnauthorized, "Not authenticated")
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return s.key, nil
		}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(s.clock.Now), jwt.WithExpirationRequired())
		if err != nil {
			writeDetail(rw, http.StatusUnauthorized, "Token expired or invalid")
			return
		}
		next(rw, r, ps, claims)
	}
}

func (s *Server) issuePair(rw http.ResponseWriter, username string, roles []string) {
	refresh := uuid.NewString()
	s.mu.Lock()
	s.refreshTokens[refresh] = username
	s.mu.Unlock()

	body := map[string]string{
		"access_token": s.IssueAccess(username, roles, s.opts.AccessTTL),
		"token_type":   "bearer",
	}
	if s.opts.CookieRefresh {
		http.SetCookie(rw, &http.Cookie{Name: refreshCookie, Value: refresh, Path: "/auth", HttpOnly: true})
	} else {
		body["refresh_token"] = refresh
	}
	writeJSON(rw, http.StatusOK, body)
}

// presentedRefresh reads the refresh credential from the cookie or the JSON
// body. Callers may hold s.mu.
func (s *Server) presentedRefresh(r *http.Request) string {
	if s.opts.CookieRefresh {
		c, err := r.Cookie(refreshCookie)
		if err != nil {
			return ""
		}
		return c.Value
	}
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body.RefreshToken
}

func writeDetail(rw http.ResponseWriter, status int, detail string) {
	writeJSON(rw, status, map[string]string{"detail": detail})
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
