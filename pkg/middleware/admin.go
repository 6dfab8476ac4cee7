package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/facilitymap/facility-engine/pkg/audit"
)

// RequireAdminKey protects admin routes with a static bearer API key.
// An empty apiKey disables the check for deployments where an upstream
// proxy authenticates operators.
func RequireAdminKey(apiKey string, auditor *audit.SecurityAuditor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				reject(w, r, auditor, "missing bearer token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				reject(w, r, auditor, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, auditor *audit.SecurityAuditor, reason string) {
	if auditor != nil {
		auditor.LogAdminAuthFailure(r.Context(), r.URL.Path, reason)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": "A valid admin API key is required",
	})
}
