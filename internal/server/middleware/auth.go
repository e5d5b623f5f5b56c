package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Auth guards mutating requests (commit, reveal, claim, create, refresh)
// with a shared API key sent as "Authorization: Bearer <key>" or
// "X-API-Key: <key>". Reads stay open so dashboards can poll, except under
// the private path prefixes, which need the key for every method but
// OPTIONS. An empty apiKey disables the check.
func Auth(apiKey string, private ...string) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(apiKey))
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || (isReadOnly(r.Method) && !isPrivate(r.URL.Path, private)) {
				next.ServeHTTP(w, r)
				return
			}

			presented, ok := apiKeyFrom(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="darkpool"`)
				writeJSONError(w, http.StatusUnauthorized, "api key required")
				return
			}
			// Hashing first keeps the comparison independent of key length.
			got := sha256.Sum256([]byte(presented))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "api key rejected")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isReadOnly(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

func isPrivate(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func apiKeyFrom(r *http.Request) (string, bool) {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token, true
		}
	}
	key := strings.TrimSpace(r.Header.Get("X-API-Key"))
	return key, key != ""
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
