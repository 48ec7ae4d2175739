package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/deviceauth"
)

type stubValidator struct {
	token string
}

func (s stubValidator) ValidateAccess(_ context.Context, token string) (deviceauth.AccessIdentity, error) {
	if token != s.token {
		return deviceauth.AccessIdentity{}, deviceauth.ErrUnauthorized
	}
	return deviceauth.AccessIdentity{UserID: "u1", Login: "alice"}, nil
}

func TestRequireAccess(t *testing.T) {
	var seen deviceauth.AccessIdentity
	h := RequireAccess(stubValidator{token: "good"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Error("identity missing from context")
		}
		seen = id
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Basic abc", http.StatusUnauthorized},
		{"Bearer ", http.StatusUnauthorized},
		{"Bearer bad", http.StatusUnauthorized},
		{"Bearer good", http.StatusOK},
		{"bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("header %q: expected %d, got %d", tc.header, tc.want, rec.Code)
		}
	}
	if seen.UserID != "u1" {
		t.Fatalf("unexpected identity %+v", seen)
	}
}

func TestRequireAccessNilValidator(t *testing.T) {
	h := RequireAccess(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestClientInfo(t *testing.T) {
	var got deviceauth.Client
	inner := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = deviceauth.ClientFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("User-Agent", "Chrome/120 (X11)")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	ClientInfo(false)(inner).ServeHTTP(httptest.NewRecorder(), req)
	if got.IP != "10.1.2.3" || got.UserAgent != "Chrome/120 (X11)" {
		t.Fatalf("unexpected client without proxy trust: %+v", got)
	}

	ClientInfo(true)(inner).ServeHTTP(httptest.NewRecorder(), req)
	if got.IP != "203.0.113.9" {
		t.Fatalf("expected forwarded ip, got %q", got.IP)
	}
}

func TestBearerToken(t *testing.T) {
	if _, ok := BearerToken("Bearer"); ok {
		t.Fatal("short header must not parse")
	}
	tok, ok := BearerToken("Bearer  abc ")
	if !ok || tok != "abc" {
		t.Fatalf("expected abc, got %q %v", tok, ok)
	}
}
