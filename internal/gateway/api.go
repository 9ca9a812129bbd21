// Package gateway is the HTTP layer of the ReportMitra admin gateway. It
// terminates browser sessions, keeps the backend bearer tokens server-side,
// and relays every administrative operation through the authenticated
// upstream client.
package gateway

import (
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"reportmitra.org/internal/obs"
	"reportmitra.org/internal/rbac"
	"reportmitra.org/internal/session"
	"reportmitra.org/internal/upstream"
)

// Options configures the API.
type Options struct {
	UpstreamURL     string
	UpstreamTimeout time.Duration
	Version         string
	RateBurst       int
	RatePerSec      int
	AllowedOrigins  []string
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	opts     Options
	sessions session.Store
	cookies  *session.CookieCodec

	// shared transport for all upstream calls
	httpClient *http.Client
	// probe client has no tokens; /api/health needs none
	probe *upstream.Client

	// session id -> CurrentUser, to keep the role gate off the backend's
	// back on every request
	userCache *gocache.Cache
	// single-entry cache for the backend liveness verdict
	healthCache *gocache.Cache
}

func New(opts Options, sessions session.Store, cookies *session.CookieCodec) *API {
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = 30 * time.Second
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 10
	}
	httpClient := &http.Client{Timeout: opts.UpstreamTimeout}

	a := &API{
		mux:         http.NewServeMux(),
		opts:        opts,
		sessions:    sessions,
		cookies:     cookies,
		httpClient:  httpClient,
		probe:       upstream.New(opts.UpstreamURL, upstream.NewMemoryStore(), upstream.WithHTTPClient(httpClient)),
		userCache:   gocache.New(30*time.Second, time.Minute),
		healthCache: gocache.New(5*time.Second, 30*time.Second),
	}

	// public entry points
	a.mux.HandleFunc("/api/token/", a.handleLogin)
	a.mux.HandleFunc("/api/logout/", a.handleLogout)
	a.mux.HandleFunc("/api/health", a.handleHealth)
	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.Handle("/metrics", obs.Handler())

	// protected area
	a.mux.HandleFunc("/api/me/", a.protected(a.handleMe))
	a.mux.HandleFunc("/api/nav/", a.protected(a.handleNav))
	a.mux.HandleFunc("/restapi/issues/", a.protected(a.handleIssues))
	a.mux.HandleFunc("/api/users/", a.protected(a.handleUsers))
	a.mux.HandleFunc("/api/register/", a.protected(a.handleRegister))
	a.mux.HandleFunc("/api/activity-logs/", a.protected(a.handleActivityLogs))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := obs.Instrument(a.mux)
	h = MaxBodyBytes(h, 8<<20)
	h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSec)
	h = CORS(h, a.opts.AllowedOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

// clientFor builds an upstream client bound to one session's tokens.
func (a *API) clientFor(sessionID string) *upstream.Client {
	return upstream.New(a.opts.UpstreamURL, session.Bind(a.sessions, sessionID), upstream.WithHTTPClient(a.httpClient))
}

// handleHealthz is the gateway's own liveness endpoint.
func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "reportmitra-admin",
		"version": a.opts.Version,
	})
}

// handleHealth reports backend availability. The verdict is cached briefly so
// a polling login screen does not hammer the backend.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	up, cached := a.healthCache.Get("backend")
	if !cached {
		err := a.probe.Health(r.Context())
		up = err == nil
		a.healthCache.Set("backend", up, gocache.DefaultExpiration)
	}
	if up.(bool) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "up"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "down"})
}

type navEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// handleNav returns the navigation entries the current user may see. Root
// only features are omitted entirely for non-root users; the routes behind
// them stay guarded regardless.
func (a *API) handleNav(w http.ResponseWriter, r *http.Request, sc *sessionContext) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, err := a.currentUser(r, sc)
	if err != nil {
		a.fail(w, r, sc, err)
		return
	}

	entries := []navEntry{
		{Name: "issues", Path: "/dashboard/issues"},
		{Name: "urgent", Path: "/dashboard/urgent"},
		{Name: "history", Path: "/dashboard/history"},
		{Name: "profile", Path: "/dashboard/profile"},
	}
	if rbac.CanAccess(rbac.FeatureCreateAccount, user) {
		entries = append(entries, navEntry{Name: "create", Path: "/dashboard/create"})
	}
	if rbac.CanAccess(rbac.FeatureDeleteAccount, user) {
		entries = append(entries, navEntry{Name: "accounts", Path: "/dashboard/accounts"})
	}
	if rbac.CanAccess(rbac.FeatureToggleStatus, user) {
		entries = append(entries, navEntry{Name: "activation", Path: "/dashboard/activation"})
	}
	if rbac.CanAccess(rbac.FeatureViewLogs, user) {
		entries = append(entries, navEntry{Name: "logs", Path: "/dashboard/logs"})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":    user,
		"entries": entries,
	})
}

// handleMe proxies the current user.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request, sc *sessionContext) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, err := a.currentUser(r, sc)
	if err != nil {
		a.fail(w, r, sc, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
