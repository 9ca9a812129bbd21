package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"reportmitra.org/internal/obs"
)

const (
	tokenPath   = "/api/token/"
	refreshPath = "/api/token/refresh/"
	healthPath  = "/api/health"

	// The liveness probe gets a short leash; business calls are not bounded
	// by the client beyond their context.
	healthTimeout = 3 * time.Second
)

// Client talks to the ReportMitra backend. Every call through Do attaches the
// stored access token and performs at most one refresh-and-retry cycle on a
// 401; concurrent 401s share a single refresh via singleflight.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	refresh singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout bounds every business call issued by this client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// New creates a client rooted at baseURL, reading and writing tokens through
// the given store.
func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tokens exposes the backing store (the CLI uses it for logout).
func (c *Client) Tokens() TokenStore { return c.tokens }

// Do issues one authenticated request. On a 401 it performs exactly one
// refresh attempt and, when that succeeds, retries the original request once
// with the new access token. Any other status, including a second 401, is
// returned as-is. A failed refresh clears both tokens and surfaces as
// ErrAuthExpired; this is the only path that clears session state outside an
// explicit logout.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	resp, err := c.send(ctx, method, path, body, c.tokens.Access())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	access, err := c.refreshAccess(ctx)
	if err != nil {
		c.tokens.Clear()
		return nil, fmt.Errorf("%w: %w", ErrAuthExpired, err)
	}
	return c.send(ctx, method, path, body, access)
}

// send issues a single request with the given access token attached.
func (c *Client) send(ctx context.Context, method, path string, body []byte, access string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		obs.ObserveUpstream(method, 0)
		return nil, &NetworkError{Op: method, URL: c.baseURL + path, Err: err}
	}
	obs.ObserveUpstream(method, resp.StatusCode)
	return resp, nil
}

// refreshAccess exchanges the stored refresh token for a new access token.
// Concurrent callers are collapsed into one network call.
func (c *Client) refreshAccess(ctx context.Context) (string, error) {
	access, err, _ := c.refresh.Do("refresh", func() (any, error) {
		refresh := c.tokens.Refresh()
		if refresh == "" {
			obs.ObserveTokenRefresh("missing")
			return "", ErrNoRefreshToken
		}

		payload, err := json.Marshal(map[string]string{"refresh": refresh})
		if err != nil {
			return "", err
		}
		resp, err := c.send(ctx, http.MethodPost, refreshPath, payload, "")
		if err != nil {
			obs.ObserveTokenRefresh("rejected")
			return "", err
		}
		defer drain(resp)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			obs.ObserveTokenRefresh("rejected")
			return "", fmt.Errorf("%w: status %d", ErrRefreshRejected, resp.StatusCode)
		}

		var pair TokenPair
		if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
			obs.ObserveTokenRefresh("rejected")
			return "", &UnexpectedResponseError{Endpoint: refreshPath, Reason: "invalid JSON body"}
		}
		if pair.Access == "" {
			obs.ObserveTokenRefresh("rejected")
			return "", &UnexpectedResponseError{Endpoint: refreshPath, Reason: "no access token in reply"}
		}
		// Keep the old refresh token unless the backend rotated it.
		c.tokens.SetTokens(TokenPair{Access: pair.Access, Refresh: pair.Refresh})
		obs.ObserveTokenRefresh("success")
		return pair.Access, nil
	})
	if err != nil {
		return "", err
	}
	return access.(string), nil
}

// doJSON wraps Do for JSON request/response bodies and maps non-2xx replies
// to the error taxonomy.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return err
		}
	}
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UnexpectedResponseError{Endpoint: path, Reason: "invalid JSON body"}
	}
	return nil
}

// errorFromResponse turns a non-2xx reply into an APIError or, when the body
// is a DRF-style field map, a ValidationError.
func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Detail: joinDetail(body)}
	}

	fields := make(map[string][]string)
	detail := ""
	for key, val := range raw {
		switch v := val.(type) {
		case string:
			if key == "detail" || key == "error" {
				detail = v
			} else {
				fields[key] = []string{v}
			}
		case []any:
			var msgs []string
			for _, item := range v {
				if s, ok := item.(string); ok {
					msgs = append(msgs, s)
				}
			}
			if len(msgs) > 0 {
				fields[key] = msgs
			}
		}
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 && len(fields) > 0 {
		if detail != "" {
			fields["detail"] = []string{detail}
		}
		return &ValidationError{Fields: fields}
	}
	return &APIError{StatusCode: resp.StatusCode, Detail: detail}
}

// drain discards the remaining body so the connection can be reused.
func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}

// AsValidation extracts a ValidationError when present.
func AsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
