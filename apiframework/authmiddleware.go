package apiframework

import (
	"net/http"
	"strings"

	"github.com/tourdesk/tourdesk/libauth"
)

// authExemptPaths are served without a bearer token.
var authExemptPaths = map[string]struct{}{
	"/health":  {},
	"/version": {},
}

// AuthMiddleware verifies the bearer token on every request and stamps the
// token's identity onto the request context. Requests without a valid token
// are rejected before reaching the handlers.
func AuthMiddleware(jwtSecret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authExemptPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			_ = Error(w, r, libauth.ErrTokenMissing, AuthorizeOperation)
			return
		}

		identity, err := libauth.VerifyToken([]byte(jwtSecret), token)
		if err != nil {
			_ = Error(w, r, err, AuthorizeOperation)
			return
		}

		next.ServeHTTP(w, r.WithContext(libauth.WithIdentity(r.Context(), identity)))
	})
}
