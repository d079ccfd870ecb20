package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/noah-isme/sejoli-chipin/internal/common"
)

// TokenGuard protects host-facing endpoints with a shared bearer token.
type TokenGuard struct {
	Token string
}

// RequireToken rejects requests whose bearer token does not match. An empty
// configured token rejects everything.
func (g TokenGuard) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := strings.TrimSpace(g.Token)
		got := extractToken(r)
		if want == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
