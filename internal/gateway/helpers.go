package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"reportmitra.org/internal/lifecycle"
	"reportmitra.org/internal/upstream"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// loginRequired denies entry into the protected area, preserving the
// originally requested location for a post-login redirect.
func (a *API) loginRequired(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"error":     "authentication required",
		"login_url": "/?next=" + url.QueryEscape(r.URL.RequestURI()),
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusUnauthorized, payload)
}

// fail maps an error from the upstream or policy layers onto the HTTP reply.
// An expired session is the only case with a side effect: the session dies
// and the user is routed back to the entry screen.
func (a *API) fail(w http.ResponseWriter, r *http.Request, sc *sessionContext, err error) {
	switch {
	case upstream.IsAuthExpired(err):
		if sc != nil {
			_ = a.sessions.Delete(r.Context(), sc.id)
			a.userCache.Delete(sc.id)
		}
		a.clearSessionCookie(w)
		a.loginRequired(w, r)

	case errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrUnknownStatus),
		errors.Is(err, lifecycle.ErrNotImage),
		errors.Is(err, lifecycle.ErrImageTooLarge):
		writeError(w, r, http.StatusBadRequest, err.Error())

	default:
		var verr *upstream.ValidationError
		var aerr *upstream.APIError
		var nerr *upstream.NetworkError
		var uerr *upstream.UnexpectedResponseError
		switch {
		case errors.As(err, &verr):
			payload := map[string]any{
				"error":  verr.Message(),
				"errors": verr.Fields,
			}
			if rid := RequestIDFromContext(r.Context()); rid != "" {
				payload["request_id"] = rid
			}
			writeJSON(w, http.StatusBadRequest, payload)
		case errors.As(err, &aerr):
			detail := aerr.Detail
			if detail == "" {
				detail = http.StatusText(aerr.StatusCode)
			}
			writeError(w, r, aerr.StatusCode, detail)
		case errors.As(err, &nerr):
			writeError(w, r, http.StatusBadGateway, "backend unavailable")
		case errors.As(err, &uerr):
			writeError(w, r, http.StatusBadGateway, uerr.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
	}
}

// sanitizeNext keeps post-login redirect targets inside the application.
func sanitizeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return ""
	}
	return next
}
