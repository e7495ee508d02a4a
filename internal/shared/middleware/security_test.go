package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsHostAllowed(t *testing.T) {
	tests := []struct {
		name         string
		host         string
		allowedHosts []string
		want         bool
	}{
		{"empty allowed hosts returns true", "example.com", nil, true},
		{"exact match", "example.com:8080", []string{"example.com:8080"}, true},
		{"host without port matches allowed with port", "example.com", []string{"example.com:8080"}, true},
		{"host with port matches allowed without port", "example.com:8080", []string{"example.com"}, true},
		{"IPv6 loopback with port", "[::1]:8080", []string{"[::1]:8080"}, true},
		{"IPv6 without port", "::1", []string{"[::1]:8080"}, true},
		{"IPv6 link-local with zone", "[fe80::1%lo0]:8080", []string{"fe80::1%lo0"}, true},
		{"case and whitespace", "  Example.COM:8080 ", []string{" example.com "}, true},
		{"match second in list", "api.example.com", []string{"example.com", "api.example.com"}, true},
		{"no match", "evil.com", []string{"example.com"}, false},
		{"subdomain mismatch", "sub.example.com", []string{"example.com"}, false},
		{"IPv6 different address", "[::2]:8080", []string{"[::1]:8080"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHostAllowed(tt.host, tt.allowedHosts); got != tt.want {
				t.Errorf("IsHostAllowed(%q, %v) = %v, want %v", tt.host, tt.allowedHosts, got, tt.want)
			}
		})
	}
}

func TestRedirectToHTTPS(t *testing.T) {
	handler := RedirectToHTTPS([]string{"sync.example.com"})

	req := httptest.NewRequest(http.MethodGet, "http://sync.example.com/sync/pull", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", rr.Code)
	}
	if got := rr.Header().Get("Location"); got != "https://sync.example.com/sync/pull" {
		t.Errorf("Location = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "http://evil.com/", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status for foreign host = %d, want 400", rr.Code)
	}
}

func TestNoStoreAndHSTS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rr := httptest.NewRecorder()
	HSTS(NoStore(next)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rr.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
	if got := rr.Header().Get("Strict-Transport-Security"); got == "" {
		t.Error("missing Strict-Transport-Security")
	}
}
