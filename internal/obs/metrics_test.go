package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                  "/",
		"/metrics":                          "/metrics",
		"/api/health":                       "/api/health",
		"/restapi/issues/":                  "/restapi/issues/",
		"/restapi/issues/RM-42/":            "/restapi/issues/:id",
		"/restapi/issues/RM-42/status/":     "/restapi/issues/:id/status",
		"/restapi/issues/RM-42/resolve/":    "/restapi/issues/:id/resolve",
		"/restapi/issues/RM-42/pdf/":        "/restapi/issues/:id/pdf",
		"/restapi/issues/?status=resolved":  "/restapi/issues/",
		"/api/users/":                       "/api/users/",
		"/api/users/abc123/delete/":         "/api/users/:id/delete",
		"/api/users/abc123/toggle-status/":  "/api/users/:id/toggle-status",
		"/api/token/":                       "/api/token/",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
