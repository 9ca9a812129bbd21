package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"reportmitra.org/internal/audit"
	"reportmitra.org/internal/session"
	"reportmitra.org/internal/upstream"
)

type loginRequest struct {
	UserID   string `json:"userid"`
	Password string `json:"password"`
}

// handleLogin exchanges credentials for a backend token pair, stores the pair
// in a fresh session and hands the browser a signed session cookie. The
// tokens themselves never reach the browser.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "userid and password are required")
		return
	}

	// The login client carries its own throwaway store; tokens move into the
	// session record only after the exchange succeeds.
	store := upstream.NewMemoryStore()
	client := upstream.New(a.opts.UpstreamURL, store, upstream.WithHTTPClient(a.httpClient))

	pair, err := client.Login(r.Context(), req.UserID, req.Password)
	if err != nil {
		a.failLogin(w, r, err)
		return
	}

	now := time.Now().UTC()
	sess := session.Session{
		ID:        session.NewID(),
		Tokens:    pair,
		CreatedAt: now,
		ExpiresAt: now.Add(a.cookies.TTL()),
	}
	if err := a.sessions.Create(r.Context(), sess); err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not create session")
		return
	}
	cookieValue, err := a.cookies.Mint(sess.ID)
	if err != nil {
		_ = a.sessions.Delete(r.Context(), sess.ID)
		writeError(w, r, http.StatusInternalServerError, "could not create session")
		return
	}
	a.setSessionCookie(w, cookieValue)

	ctx := audit.WithActor(r.Context(), req.UserID)
	_ = audit.LogEvent(ctx, "session.login", map[string]any{
		"userid": req.UserID,
		"ip":     clientIP(r),
	})

	payload := map[string]any{"status": "ok"}
	if next := sanitizeNext(r.URL.Query().Get("next")); next != "" {
		payload["next"] = next
	}
	writeJSON(w, http.StatusOK, payload)
}

// failLogin maps a failed token exchange. Field-level errors keep the
// backend's own precedence so the form can show them inline.
func (a *API) failLogin(w http.ResponseWriter, r *http.Request, err error) {
	var verr *upstream.ValidationError
	var aerr *upstream.APIError
	var uerr *upstream.UnexpectedResponseError
	switch {
	case errors.As(err, &verr):
		payload := map[string]any{
			"detail": verr.Message(),
			"errors": verr.Fields,
		}
		writeJSON(w, http.StatusBadRequest, payload)
	case errors.As(err, &aerr):
		detail := aerr.Detail
		if detail == "" {
			detail = "login failed"
		}
		writeError(w, r, aerr.StatusCode, detail)
	case errors.As(err, &uerr):
		writeError(w, r, http.StatusBadGateway, uerr.Error())
	case errors.Is(err, upstream.ErrNoRefreshToken), errors.Is(err, upstream.ErrRefreshRejected):
		writeError(w, r, http.StatusBadGateway, "failed to obtain access token")
	default:
		writeError(w, r, http.StatusBadGateway, "backend unavailable")
	}
}

// handleLogout tears the session down. Safe to call without a session; the
// reply is identical either way.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if cookie, err := r.Cookie(a.cookies.Name()); err == nil {
		if sid, err := a.cookies.Verify(cookie.Value); err == nil {
			_ = a.sessions.Delete(r.Context(), sid)
			a.userCache.Delete(sid)
			_ = audit.LogEvent(r.Context(), "session.logout", map[string]any{
				"ip": clientIP(r),
			})
		}
	}
	a.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}
