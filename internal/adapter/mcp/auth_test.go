package mcp_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	csmcp "github.com/Strob0t/CodeSense/internal/adapter/mcp"
)

func authStatus(t *testing.T, apiKey, header string) int {
	t.Helper()
	handler := csmcp.AuthMiddleware(apiKey, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		header string
		want   int
	}{
		{"disabled passes everything", "", "", http.StatusOK},
		{"bearer token accepted", "s3cret", "Bearer s3cret", http.StatusOK},
		{"bare key accepted", "s3cret", "s3cret", http.StatusOK},
		{"missing header rejected", "s3cret", "", http.StatusUnauthorized},
		{"wrong key rejected", "s3cret", "Bearer nope", http.StatusForbidden},
		{"wrong bare key rejected", "s3cret", "nope", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := authStatus(t, tt.apiKey, tt.header); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}
