package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantCreds  string
		wantStatus int
	}{
		{"explicit origin", []string{"http://localhost:5173"}, "http://localhost:5173", http.MethodGet, "http://localhost:5173", "true", http.StatusTeapot},
		{"wildcard without credentials", []string{"*"}, "https://any.test", http.MethodGet, "https://any.test", "", http.StatusTeapot},
		{"rejected origin", []string{"http://localhost:5173"}, "https://evil.test", http.MethodGet, "", "", http.StatusTeapot},
		{"preflight", []string{"http://localhost:5173"}, "http://localhost:5173", http.MethodOptions, "http://localhost:5173", "true", http.StatusOK},
		{"no origin", []string{"*"}, "", http.MethodGet, "", "", http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/facebook/status", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			CORS(tt.allowed)(next).ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Expected allow-origin %q, got %q", tt.wantOrigin, got)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Errorf("Expected credentials %q, got %q", tt.wantCreds, got)
			}
		})
	}
}
