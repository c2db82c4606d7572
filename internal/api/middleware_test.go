package api

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"Bearer  abc ", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		token, ok := bearerToken(r)
		if ok != tt.ok || (ok && token != tt.token) {
			t.Errorf("%q: expected (%q, %v), got (%q, %v)", tt.header, tt.token, tt.ok, token, ok)
		}
	}
}

func TestAuthMiddleware_JSONErrorsAndRejectLog(t *testing.T) {
	var buf strings.Builder
	log := slog.New(slog.NewTextHandler(&buf, nil))
	h := middleware.RequestID(AuthMiddleware("secret", log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	for header, want := range map[string]string{"": "missing authorization", "Bearer nope": "invalid api key"} {
		r := httptest.NewRequest(http.MethodGet, "/api/codes", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		if rec.Code != http.StatusUnauthorized || rec.Header().Get("Content-Type") != "application/json" {
			t.Errorf("%q: expected JSON 401, got %d %q", header, rec.Code, rec.Header().Get("Content-Type"))
		}
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("%q: expected %q in body, got %s", header, want, rec.Body)
		}
	}
	if !strings.Contains(buf.String(), "rejected api key") || !strings.Contains(buf.String(), "request_id=") {
		t.Errorf("expected a rejection log with request id, got %q", buf.String())
	}

	r := httptest.NewRequest(http.MethodGet, "/api/codes", nil)
	r.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected the request through, got %d", rec.Code)
	}
}

func TestRequestLogger_LevelsAndBytes(t *testing.T) {
	var buf strings.Builder
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/boom":
			w.WriteHeader(http.StatusBadGateway)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		}
		w.Write([]byte("hello"))
	}))

	for _, path := range []string{"/health", "/api/codes", "/missing", "/boom"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 log lines, got %q", buf.String())
	}
	for i, want := range []string{"level=DEBUG", "level=INFO", "level=WARN", "level=ERROR"} {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %d: expected %s, got %q", i, want, lines[i])
		}
		if !strings.Contains(lines[i], "bytes=5") {
			t.Errorf("line %d: expected bytes=5, got %q", i, lines[i])
		}
	}
}

func TestRequestLevel(t *testing.T) {
	if requestLevel("/health", 503) != slog.LevelError {
		t.Error("expected a failing health check to log at error")
	}
	if requestLevel("/api/search", 200) != slog.LevelInfo {
		t.Error("expected success to log at info")
	}
}
