package mcp

import (
	"net/http"
	"strings"
)

// AuthMiddleware guards the streamable HTTP endpoint with a static key. MCP
// clients send either "Authorization: Bearer <key>" or the bare key; the
// stdio transport never passes through here. An empty key disables the check
// so local setups need no credential.
func AuthMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}
		if strings.TrimPrefix(header, "Bearer ") != apiKey {
			http.Error(w, "invalid credentials", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
