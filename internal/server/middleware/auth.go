package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Auth guards the fund-moving routes with a shared API key, accepted as
// "Authorization: Bearer <key>" or "X-API-Key: <key>". An empty apiKey
// turns the guard off.
func Auth(apiKey string) func(http.Handler) http.Handler {
	want := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, found := presentedKey(r.Header)
			switch {
			case !found:
				w.Header().Set("WWW-Authenticate", `Bearer realm="shuttle"`)
				reject(w, http.StatusUnauthorized, "missing authentication token", "UNAUTHORIZED")
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				reject(w, http.StatusUnauthorized, "invalid authentication token", "UNAUTHORIZED")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func presentedKey(h http.Header) (string, bool) {
	if scheme, token, ok := strings.Cut(h.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token, true
		}
	}
	if key := strings.TrimSpace(h.Get("X-API-Key")); key != "" {
		return key, true
	}
	return "", false
}

// reject writes the API's {"error","code"} body with the given status.
func reject(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}{msg, code})
}
