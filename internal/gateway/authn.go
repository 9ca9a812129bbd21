package gateway

import (
	"net/http"

	gocache "github.com/patrickmn/go-cache"

	"reportmitra.org/internal/rbac"
	"reportmitra.org/internal/upstream"
)

// sessionContext carries the verified session through a protected handler.
type sessionContext struct {
	id     string
	client *upstream.Client
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sc *sessionContext)

// protected admits a request only with a valid session cookie backed by a
// live session record; everything else is routed to the login entry point
// with the requested location preserved.
func (a *API) protected(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(a.cookies.Name())
		if err != nil {
			a.loginRequired(w, r)
			return
		}
		sid, err := a.cookies.Verify(cookie.Value)
		if err != nil {
			a.clearSessionCookie(w)
			a.loginRequired(w, r)
			return
		}
		if _, err := a.sessions.Get(r.Context(), sid); err != nil {
			a.clearSessionCookie(w)
			a.loginRequired(w, r)
			return
		}
		next(w, r, &sessionContext{id: sid, client: a.clientFor(sid)})
	}
}

// currentUser resolves the session's administrator, with a short-lived cache
// in front of /api/me/.
func (a *API) currentUser(r *http.Request, sc *sessionContext) (upstream.CurrentUser, error) {
	if v, ok := a.userCache.Get(sc.id); ok {
		return v.(upstream.CurrentUser), nil
	}
	user, err := sc.client.Me(r.Context())
	if err != nil {
		return upstream.CurrentUser{}, err
	}
	a.userCache.Set(sc.id, user, gocache.DefaultExpiration)
	return user, nil
}

// authorize enforces a RoleGate feature check; on failure it writes an
// explicit access-denied reply and reports false.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, sc *sessionContext, feature rbac.Feature) (upstream.CurrentUser, bool) {
	user, err := a.currentUser(r, sc)
	if err != nil {
		a.fail(w, r, sc, err)
		return upstream.CurrentUser{}, false
	}
	if !rbac.CanAccess(feature, user) {
		writeError(w, r, http.StatusForbidden, "access denied")
		return upstream.CurrentUser{}, false
	}
	return user, true
}

func (a *API) setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookies.Name(),
		Value:    value,
		Path:     "/",
		MaxAge:   int(a.cookies.TTL().Seconds()),
		HttpOnly: true,
		Secure:   a.cookies.Secure(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookies.Name(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookies.Secure(),
		SameSite: http.SameSiteLaxMode,
	})
}
