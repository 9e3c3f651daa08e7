package guard

import (
	"net/http"

	goAuthClient "github.com/MrEthical07/goAuthClient"
)

// Decision is the outcome of evaluating a route against a session view.
type Decision int

const (
	Allow Decision = iota
	RedirectLogin
	RedirectNotAuthorized
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectNotAuthorized:
		return "redirect_not_authorized"
	default:
		return "unknown"
	}
}

// ViewSource supplies the current session view. *goAuthClient.Session
// implements it.
type ViewSource interface {
	View() goAuthClient.View
}

const (
	DefaultLoginPath         = "/login"
	DefaultNotAuthorizedPath = "/not-authorized"
)

// Options holds redirect destinations. Empty paths fall back to the defaults.
type Options struct {
	LoginPath         string
	NotAuthorizedPath string
}

// Decide evaluates view against requiredRoles. An empty role list admits
// any authenticated view.
func Decide(view goAuthClient.View, requiredRoles []string) Decision {
	if !view.IsAuthenticated {
		return RedirectLogin
	}
	if len(requiredRoles) > 0 && !view.HasAnyRole(requiredRoles...) {
		return RedirectNotAuthorized
	}
	return Allow
}

// Require returns middleware that serves next only when Decide allows the
// current view of source.
func Require(source ViewSource, opts Options, roles ...string) func(http.Handler) http.Handler {
	loginPath := opts.LoginPath
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	notAuthorizedPath := opts.NotAuthorizedPath
	if notAuthorizedPath == "" {
		notAuthorizedPath = DefaultNotAuthorizedPath
	}
	required := append([]string(nil), roles...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if source == nil {
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}

			switch Decide(source.View(), required) {
			case RedirectLogin:
				http.Redirect(w, r, loginPath, http.StatusFound)
			case RedirectNotAuthorized:
				http.Redirect(w, r, notAuthorizedPath, http.StatusFound)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
