package gateway

import (
	"net/http"
	"regexp"
	"strings"

	"reportmitra.org/internal/audit"
	"reportmitra.org/internal/rbac"
	"reportmitra.org/internal/upstream"
)

// userIDRx mirrors the backend's account identifier format so obviously bad
// input never leaves the gateway.
var userIDRx = regexp.MustCompile(`^[a-zA-Z0-9]{6}$`)

// handleUsers routes /api/users/ (list) and the per-account actions
// /api/users/{id}/delete/ and /api/users/{id}/toggle-status/.
func (a *API) handleUsers(w http.ResponseWriter, r *http.Request, sc *sessionContext) {
	path := strings.TrimPrefix(r.URL.Path, "/api/users/")
	path = strings.Trim(path, "/")
	if path == "" {
		a.handleUserList(w, r, sc)
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch parts[1] {
	case "delete":
		a.handleUserDelete(w, r, sc, parts[0])
	case "toggle-status":
		a.handleUserToggle(w, r, sc, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// Listing is available to every administrator; the backend scopes the result
// to the caller's department for non-root users.
func (a *API) handleUserList(w http.ResponseWriter, r *http.Request, sc *sessionContext) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	users, err := sc.client.ListUsers(r.Context())
	if err != nil {
		a.fail(w, r, sc, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) handleUserDelete(w http.ResponseWriter, r *http.Request, sc *sessionContext, userid string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	actor, ok := a.authorize(w, r, sc, rbac.FeatureDeleteAccount)
	if !ok {
		return
	}
	if err := sc.client.DeleteUser(r.Context(), userid); err != nil {
		a.fail(w, r, sc, err)
		return
	}
	ctx := audit.WithActor(r.Context(), actor.UserID)
	_ = audit.LogEvent(ctx, "account.delete", map[string]any{
		"target": userid,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (a *API) handleUserToggle(w http.ResponseWriter, r *http.Request, sc *sessionContext, userid string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	actor, ok := a.authorize(w, r, sc, rbac.FeatureToggleStatus)
	if !ok {
		return
	}
	rec, err := sc.client.ToggleUserStatus(r.Context(), userid)
	if err != nil {
		a.fail(w, r, sc, err)
		return
	}
	event := "account.deactivate"
	if rec.IsActive {
		event = "account.activate"
	}
	ctx := audit.WithActor(r.Context(), actor.UserID)
	_ = audit.LogEvent(ctx, event, map[string]any{
		"target": userid,
	})
	writeJSON(w, http.StatusOK, rec)
}

// handleRegister creates a new administrative account. Root only; the new
// account inherits the creator's department server-side.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request, sc *sessionContext) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.authorize(w, r, sc, rbac.FeatureCreateAccount)
	if !ok {
		return
	}

	var req upstream.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if !userIDRx.MatchString(req.UserID) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid userid",
			"errors": map[string][]string{"userid": {"must be exactly 6 letters or digits"}},
		})
		return
	}
	if req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "password is required",
			"errors": map[string][]string{"password": {"this field is required"}},
		})
		return
	}

	rec, err := sc.client.Register(r.Context(), req)
	if err != nil {
		a.fail(w, r, sc, err)
		return
	}
	ctx := audit.WithActor(r.Context(), actor.UserID)
	_ = audit.LogEvent(ctx, "account.create", map[string]any{
		"target": rec.UserID,
	})
	writeJSON(w, http.StatusCreated, rec)
}

// handleActivityLogs relays the backend's append-only account activity log.
func (a *API) handleActivityLogs(w http.ResponseWriter, r *http.Request, sc *sessionContext) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.authorize(w, r, sc, rbac.FeatureViewLogs); !ok {
		return
	}
	entries, err := sc.client.ActivityLogs(r.Context())
	if err != nil {
		a.fail(w, r, sc, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
