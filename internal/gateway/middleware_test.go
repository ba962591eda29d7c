package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequireAPIKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := RequireAPIKey("s3cret", logger)(ok)

	tests := []struct {
		name       string
		path       string
		auth       string
		wantStatus int
		wantDetail string
	}{
		{"valid key", "/products", "Bearer s3cret", http.StatusOK, ""},
		{"scheme is case insensitive", "/products", "bearer s3cret", http.StatusOK, ""},
		{"missing header", "/products", "", http.StatusForbidden, "Not authenticated"},
		{"scheme only", "/products", "Bearer", http.StatusForbidden, "Not authenticated"},
		{"wrong scheme", "/products", "Basic s3cret", http.StatusForbidden, "Invalid authentication credentials"},
		{"wrong key", "/products", "Bearer nope", http.StatusForbidden, "Invalid authentication credentials"},
		{"notifications are public", "/payments/notifications", "", http.StatusOK, ""},
		{"finish page is public", "/payments/finish", "", http.StatusOK, ""},
		{"health is public", "/healthz", "", http.StatusOK, ""},
		{"prefix lookalike is not public", "/healthzz", "", http.StatusForbidden, "Not authenticated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantDetail == "" {
				return
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body["detail"] != tt.wantDetail {
				t.Errorf("expected detail %q, got %q", tt.wantDetail, body["detail"])
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(HeaderRequestID)
	}))

	t.Run("generates when missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if seen == "" {
			t.Fatal("expected a generated request id")
		}
		if rec.Header().Get(HeaderRequestID) != seen {
			t.Errorf("response id %q does not match %q", rec.Header().Get(HeaderRequestID), seen)
		}
	})

	t.Run("keeps incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "abc")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if seen != "abc" {
			t.Errorf("expected abc, got %q", seen)
		}
	})
}

func TestRateLimiter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rl := NewRateLimiter(1, 2, logger)
	handler := rl.Middleware(ok)

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := range 2 {
		if code := do("10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := do("10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", code)
	}
	if code := do("10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("other clients must not be limited, got %d", code)
	}

	rl.Cleanup(-time.Second)
	if len(rl.visitors) != 0 {
		t.Errorf("expected visitors to be cleaned up, got %d", len(rl.visitors))
	}
}
