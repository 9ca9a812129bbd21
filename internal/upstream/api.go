package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"reportmitra.org/internal/lifecycle"
)

// Login exchanges credentials for a token pair and stores it. Some backend
// deployments answer with only a refresh token; the exchange is then
// completed against the refresh endpoint before returning.
func (c *Client) Login(ctx context.Context, userid, password string) (TokenPair, error) {
	payload, err := json.Marshal(map[string]string{"userid": userid, "password": password})
	if err != nil {
		return TokenPair{}, err
	}
	resp, err := c.send(ctx, http.MethodPost, tokenPath, payload, "")
	if err != nil {
		return TokenPair{}, err
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return TokenPair{}, errorFromResponse(resp)
	}

	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return TokenPair{}, &UnexpectedResponseError{Endpoint: tokenPath, Reason: "invalid JSON body"}
	}

	switch {
	case pair.Access != "" && pair.Refresh != "":
		c.tokens.SetTokens(pair)
		return pair, nil

	case pair.Refresh != "" && pair.Access == "":
		// Refresh-only reply: mint the access token ourselves.
		c.tokens.SetTokens(TokenPair{Refresh: pair.Refresh})
		access, err := c.refreshAccess(ctx)
		if err != nil {
			c.tokens.Clear()
			return TokenPair{}, err
		}
		return TokenPair{Access: access, Refresh: c.tokens.Refresh()}, nil

	default:
		return TokenPair{}, &UnexpectedResponseError{Endpoint: tokenPath, Reason: "neither access nor refresh token in reply"}
	}
}

// Logout discards the stored tokens. The backend records the logout through
// its own activity log when the session cookie dies; there is no logout
// endpoint in the REST surface.
func (c *Client) Logout() {
	c.tokens.Clear()
}

// Me fetches the current administrator.
func (c *Client) Me(ctx context.Context) (CurrentUser, error) {
	var user CurrentUser
	err := c.doJSON(ctx, http.MethodGet, "/api/me/", nil, &user)
	return user, err
}

// ListIssues returns the department's issues, optionally filtered by status.
// With an empty status the backend replies with pending and in_progress.
func (c *Client) ListIssues(ctx context.Context, status string) ([]Issue, error) {
	path := "/restapi/issues/"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var issues []Issue
	err := c.doJSON(ctx, http.MethodGet, path, nil, &issues)
	return issues, err
}

// GetIssue fetches one issue with presigned image URLs attached.
func (c *Client) GetIssue(ctx context.Context, trackingID string) (Issue, error) {
	var issue Issue
	err := c.doJSON(ctx, http.MethodGet, issuePath(trackingID, ""), nil, &issue)
	return issue, err
}

// UpdateIssueStatus asks the backend to move an issue to a new status. The
// transition must already have passed lifecycle validation; the backend
// enforces the same state machine again.
func (c *Client) UpdateIssueStatus(ctx context.Context, trackingID, status string) (StatusUpdate, error) {
	var upd StatusUpdate
	err := c.doJSON(ctx, http.MethodPatch, issuePath(trackingID, "status"), map[string]string{"status": status}, &upd)
	return upd, err
}

// PresignUpload obtains a direct-upload target for a completion image.
func (c *Client) PresignUpload(ctx context.Context, fileName, contentType string) (PresignTarget, error) {
	var target PresignTarget
	err := c.doJSON(ctx, http.MethodPost, "/api/presign-s3/", map[string]string{
		"fileName":    fileName,
		"contentType": contentType,
	}, &target)
	if err != nil {
		return PresignTarget{}, err
	}
	if target.URL == "" || target.Key == "" {
		return PresignTarget{}, &UnexpectedResponseError{Endpoint: "/api/presign-s3/", Reason: "missing url or key"}
	}
	return target, nil
}

// UploadObject transfers the file bytes straight to the presigned
// destination. No bearer credential is attached: the URL itself authorizes
// the PUT.
func (c *Client) UploadObject(ctx context.Context, target PresignTarget, contentType string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.URL, body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: http.MethodPut, URL: target.URL, Err: err}
	}
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Detail: "object upload failed"}
	}
	return nil
}

// ResolveIssue reports the uploaded completion key, completing the
// transition to resolved.
func (c *Client) ResolveIssue(ctx context.Context, trackingID, completionKey string) (Issue, error) {
	var issue Issue
	err := c.doJSON(ctx, http.MethodPatch, issuePath(trackingID, "resolve"), map[string]string{"completion_key": completionKey}, &issue)
	return issue, err
}

// ResolveWithImage runs the full three-phase resolve: validate the evidence
// image, obtain a presigned target, PUT the bytes, then confirm with the
// opaque key. A failure at any phase aborts the whole action and leaves the
// issue status unchanged; requests failing validation never reach the
// network.
func (c *Client) ResolveWithImage(ctx context.Context, trackingID, fileName, contentType string, size int64, body io.Reader) (Issue, error) {
	if err := lifecycle.ValidateCompletionImage(contentType, size); err != nil {
		return Issue{}, err
	}
	target, err := c.PresignUpload(ctx, fileName, contentType)
	if err != nil {
		return Issue{}, err
	}
	if err := c.UploadObject(ctx, target, contentType, body, size); err != nil {
		return Issue{}, err
	}
	return c.ResolveIssue(ctx, trackingID, target.Key)
}

// DownloadPDF streams the issue report PDF. The bearer header is attached
// directly, outside the refresh wrapper, since the reply is binary. The
// caller owns the returned body.
func (c *Client) DownloadPDF(ctx context.Context, trackingID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+issuePath(trackingID, "pdf"), nil)
	if err != nil {
		return nil, err
	}
	if access := c.tokens.Access(); access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: http.MethodGet, URL: req.URL.String(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer drain(resp)
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: pdf download", ErrAuthExpired)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: "pdf download failed"}
	}
	return resp.Body, nil
}

// Register creates a new administrative account. Field-level failures come
// back as a *ValidationError.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (AccountRecord, error) {
	var rec AccountRecord
	err := c.doJSON(ctx, http.MethodPost, "/api/register/", req, &rec)
	return rec, err
}

// ListUsers returns the accounts visible to the caller (department-scoped
// for non-root users).
func (c *Client) ListUsers(ctx context.Context) ([]AccountRecord, error) {
	var users []AccountRecord
	err := c.doJSON(ctx, http.MethodGet, "/api/users/", nil, &users)
	return users, err
}

// DeleteUser removes an account. Root only; the backend guards the last-root
// invariant.
func (c *Client) DeleteUser(ctx context.Context, userid string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(userid)+"/delete/", nil, nil)
}

// ToggleUserStatus flips an account between active and inactive.
func (c *Client) ToggleUserStatus(ctx context.Context, userid string) (AccountRecord, error) {
	var rec AccountRecord
	err := c.doJSON(ctx, http.MethodPatch, "/api/users/"+url.PathEscape(userid)+"/toggle-status/", nil, &rec)
	return rec, err
}

// ActivityLogs returns the append-only account activity log.
func (c *Client) ActivityLogs(ctx context.Context) ([]ActivityLogEntry, error) {
	var entries []ActivityLogEntry
	err := c.doJSON(ctx, http.MethodGet, "/api/activity-logs/", nil, &entries)
	return entries, err
}

// Health probes backend liveness with a short timeout. A network failure or
// a 5xx both classify as unavailable; anything below 500 counts as up even
// when unauthenticated.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer drain(resp)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}
	return nil
}

func issuePath(trackingID, action string) string {
	p := "/restapi/issues/" + url.PathEscape(trackingID) + "/"
	if action != "" {
		p += action + "/"
	}
	return p
}
