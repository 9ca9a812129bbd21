package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLoginStoresBothTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/token/" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["userid"] != "abc123" || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "invalid credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access": "a1", "refresh": "r1"})
	}))
	defer srv.Close()

	store := NewMemoryStore()
	cl := New(srv.URL, store)

	pair, err := cl.Login(context.Background(), "abc123", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.Access != "a1" || pair.Refresh != "r1" {
		t.Fatalf("unexpected pair: %+v", pair)
	}
	if store.Access() != "a1" || store.Refresh() != "r1" {
		t.Fatal("tokens not stored after login")
	}
}

func TestLoginRefreshOnlyReply(t *testing.T) {
	// Some deployments answer the token endpoint with only a refresh token;
	// the login must then complete itself through the refresh endpoint.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/token/":
			_ = json.NewEncoder(w).Encode(map[string]string{"refresh": "r-only"})
		case "/api/token/refresh/":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["refresh"] != "r-only" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"access": "minted"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store := NewMemoryStore()
	cl := New(srv.URL, store)

	pair, err := cl.Login(context.Background(), "abc123", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.Access != "minted" || pair.Refresh != "r-only" {
		t.Fatalf("unexpected pair: %+v", pair)
	}
	if store.Access() != "minted" {
		t.Fatal("minted access token not stored")
	}
}

func TestLoginRefreshOnlyReplyFailureClearsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/token/":
			_ = json.NewEncoder(w).Encode(map[string]string{"refresh": "r-only"})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	store := NewMemoryStore()
	cl := New(srv.URL, store)

	if _, err := cl.Login(context.Background(), "abc123", "secret"); err == nil {
		t.Fatal("expected error when access cannot be minted")
	}
	if store.Refresh() != "" {
		t.Fatal("half-completed login must not leave a refresh token behind")
	}
}

func TestLoginUnexpectedReplyShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "true"})
	}))
	defer srv.Close()

	cl := New(srv.URL, NewMemoryStore())
	_, err := cl.Login(context.Background(), "abc123", "secret")
	var uerr *UnexpectedResponseError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UnexpectedResponseError, got %v", err)
	}
}

func TestLoginFieldErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"userid":   []string{"This field is required."},
			"password": []string{"This field is required."},
		})
	}))
	defer srv.Close()

	cl := New(srv.URL, NewMemoryStore())
	_, err := cl.Login(context.Background(), "", "")

	verr, ok := AsValidation(err)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.First("userid") == "" || verr.First("password") == "" {
		t.Fatalf("field errors lost: %+v", verr.Fields)
	}
	// userid wins over password in the single-line rendering.
	if got := verr.Message(); got != "This field is required." {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestValidationMessagePrecedence(t *testing.T) {
	verr := &ValidationError{Fields: map[string][]string{
		"userid":           {"bad userid"},
		"non_field_errors": {"account disabled"},
	}}
	if got := verr.Message(); got != "account disabled" {
		t.Fatalf("non_field_errors must win over field errors, got %q", got)
	}

	verr.Fields["detail"] = []string{"backend says no"}
	if got := verr.Message(); got != "backend says no" {
		t.Fatalf("detail must win over everything, got %q", got)
	}
}

func TestListIssuesStatusFilter(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode([]map[string]any{{"tracking_id": "RM-1", "status": "resolved"}})
	}))
	defer srv.Close()

	store := NewMemoryStore()
	store.SetTokens(TokenPair{Access: "a"})
	cl := New(srv.URL, store)

	issues, err := cl.ListIssues(context.Background(), "resolved")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotQuery != "status=resolved" {
		t.Fatalf("unexpected query: %q", gotQuery)
	}
	if len(issues) != 1 || issues[0].TrackingID != "RM-1" {
		t.Fatalf("unexpected issues: %+v", issues)
	}
}

func TestResolveWithImagePhaseOrdering(t *testing.T) {
	var calls []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/presign-s3/":
			calls = append(calls, "presign")
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["fileName"] != "proof.jpg" || body["contentType"] != "image/jpeg" {
				t.Errorf("unexpected presign body: %v", body)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"url": "http://" + r.Host + "/upload-target",
				"key": "completions/proof.jpg",
			})
		case r.URL.Path == "/upload-target" && r.Method == http.MethodPut:
			calls = append(calls, "upload")
			if r.Header.Get("Authorization") != "" {
				t.Error("presigned PUT must not carry a bearer token")
			}
			data, _ := io.ReadAll(r.Body)
			if string(data) != "imagebytes" {
				t.Errorf("unexpected upload body: %q", data)
			}
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/resolve/"):
			calls = append(calls, "confirm")
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["completion_key"] != "completions/proof.jpg" {
				t.Errorf("unexpected completion key: %v", body)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"tracking_id": "RM-1", "status": "resolved"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store := NewMemoryStore()
	store.SetTokens(TokenPair{Access: "a"})
	cl := New(srv.URL, store)

	body := strings.NewReader("imagebytes")
	issue, err := cl.ResolveWithImage(context.Background(), "RM-1", "proof.jpg", "image/jpeg", int64(body.Len()), body)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if issue.Status != "resolved" {
		t.Fatalf("unexpected status: %q", issue.Status)
	}
	want := []string{"presign", "upload", "confirm"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestResolveWithImageValidationStopsBeforeNetwork(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	cl := New(srv.URL, NewMemoryStore())
	_, err := cl.ResolveWithImage(context.Background(), "RM-1", "doc.pdf", "application/pdf", 100, strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if hits != 0 {
		t.Fatalf("invalid evidence must not reach the network, got %d requests", hits)
	}
}

func TestResolveWithImageUploadFailureAborts(t *testing.T) {
	var confirmed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/presign-s3/":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"url": "http://" + r.Host + "/upload-target",
				"key": "k",
			})
		case r.URL.Path == "/upload-target":
			w.WriteHeader(http.StatusForbidden)
		case strings.HasSuffix(r.URL.Path, "/resolve/"):
			confirmed = true
		}
	}))
	defer srv.Close()

	store := NewMemoryStore()
	store.SetTokens(TokenPair{Access: "a"})
	cl := New(srv.URL, store)

	_, err := cl.ResolveWithImage(context.Background(), "RM-1", "p.jpg", "image/jpeg", 3, strings.NewReader("abc"))
	if err == nil {
		t.Fatal("expected upload failure")
	}
	if confirmed {
		t.Fatal("failed upload must not be confirmed")
	}
}

func TestHealth(t *testing.T) {
	t.Run("up", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()
		if err := New(srv.URL, NewMemoryStore()).Health(context.Background()); err != nil {
			t.Fatalf("expected healthy, got %v", err)
		}
	})

	t.Run("unauthenticated is still up", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()
		if err := New(srv.URL, NewMemoryStore()).Health(context.Background()); err != nil {
			t.Fatalf("401 must count as reachable, got %v", err)
		}
	})

	t.Run("5xx is down", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()
		err := New(srv.URL, NewMemoryStore()).Health(context.Background())
		if !errors.Is(err, ErrBackendUnavailable) {
			t.Fatalf("expected ErrBackendUnavailable, got %v", err)
		}
	})

	t.Run("network failure is down", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()
		err := New(srv.URL, NewMemoryStore()).Health(context.Background())
		if !errors.Is(err, ErrBackendUnavailable) {
			t.Fatalf("expected ErrBackendUnavailable, got %v", err)
		}
	})

	t.Run("slow probe times out", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}))
		defer srv.Close()

		start := time.Now()
		err := New(srv.URL, NewMemoryStore()).Health(context.Background())
		if !errors.Is(err, ErrBackendUnavailable) {
			t.Fatalf("expected ErrBackendUnavailable, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > 4*time.Second {
			t.Fatalf("probe took %v, must be bounded by its own timeout", elapsed)
		}
	})
}

func TestDownloadPDFUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	store.SetTokens(TokenPair{Access: "stale"})
	cl := New(srv.URL, store)

	_, err := cl.DownloadPDF(context.Background(), "RM-1")
	if !IsAuthExpired(err) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
}

func TestDeleteUserPath(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	store := NewMemoryStore()
	store.SetTokens(TokenPair{Access: "a"})
	cl := New(srv.URL, store)

	if err := cl.DeleteUser(context.Background(), "abc123"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/api/users/abc123/delete/" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
}
