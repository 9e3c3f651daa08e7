package goAuthClient

// State is the session lifecycle state.
type State int

const (
	StateUnauthenticated State = iota
	// StateRestoring is the initial state, held until Restore finishes.
	StateRestoring
	StateAuthenticated
	// StateRefreshing is held while a refresh started from an authenticated
	// session is in flight.
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateRestoring:
		return "restoring"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// View is what route guards and pages read from the session. It is derived
// from the current access credential every time it is requested.
type View struct {
	IsAuthenticated bool
	Roles           []string
	Subject         string
	State           State
}

// HasAnyRole reports whether the view carries at least one of roles.
func (v View) HasAnyRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range v.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// View returns the derived session view.
func (s *Session) View() View {
	s.mu.RLock()
	token := s.creds.AccessToken
	state := s.state
	s.mu.RUnlock()

	v := View{
		IsAuthenticated: token != "" && !s.codec.IsExpired(token),
		Roles:           s.codec.ReadRoles(token),
		State:           state,
	}
	if v.IsAuthenticated {
		if claims, err := s.codec.Claims(token); err == nil {
			v.Subject = claims.Subject
		}
	}
	return v
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn to receive the view after every credential change.
// Notifications are delivered in order on the goroutine that made the change,
// so fn must not call Login, Logout, Refresh or Invalidate itself. The
// returned function removes the subscription.
func (s *Session) Subscribe(fn func(View)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Session) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.subMu.Lock()
	if len(s.subs) == 0 {
		s.subMu.Unlock()
		return
	}
	fns := make([]func(View), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	view := s.View()
	for _, fn := range fns {
		fn(view)
	}
}
